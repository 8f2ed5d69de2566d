// Backend is a test HTTP server for exercising the proxy's circuit
// breakers. It serves /orders and /health, and can be flipped into a
// failing mode at runtime.
//
// Usage:
//
//	go run ./scripts/backend -port 8081
//
// POST /toggle switches between healthy and failing; while failing every
// request is answered with 500 so the breaker guarding this backend trips.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
)

// newUUID generates a random v4 UUID per RFC 4122.
func newUUID() string {
	b := make([]byte, 16)
	_, err := rand.Read(b)
	if err != nil {
		return ""
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%s-%s-%s-%s-%s",
		hex.EncodeToString(b[0:4]),
		hex.EncodeToString(b[4:6]),
		hex.EncodeToString(b[6:8]),
		hex.EncodeToString(b[8:10]),
		hex.EncodeToString(b[10:16]),
	)
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	startFailing := flag.Bool("failing", false, "start in failing mode")
	flag.Parse()

	var failing atomic.Bool
	failing.Store(*startFailing)

	mux := http.NewServeMux()
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("request: method=%s path=%s from=%s", r.Method, r.URL.Path, r.RemoteAddr)

		if failing.Load() {
			http.Error(w, "backend deliberately failing", http.StatusInternalServerError)
			return
		}

		resp := map[string]any{"order_id": newUUID(), "status": "accepted"}
		b, _ := json.Marshal(resp)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(b)
	})

	mux.HandleFunc("/toggle", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		now := !failing.Load()
		failing.Store(now)
		log.Printf("failing mode set to %v", now)
		fmt.Fprintf(w, "failing=%v\n", now)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "failing", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting backend on %s (failing=%v)", addr, failing.Load())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
