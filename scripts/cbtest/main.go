// cbtest drives the proxy through a full circuit breaker episode against
// a toggleable test backend: normal traffic, backend failure until the
// breaker opens, fail-fast verification, recovery through the trial
// request.
//
// Usage:
//
//	go run ./scripts/cbtest -proxy http://localhost:8080 -upstream orders -backend http://localhost:8081
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func main() {
	var (
		proxyURL   = flag.String("proxy", "http://localhost:8080", "Proxy URL")
		upstream   = flag.String("upstream", "orders", "Upstream name to drive")
		backendURL = flag.String("backend", "http://localhost:8081", "Backend URL for /toggle")
		requests   = flag.Int("requests", 20, "Requests per phase")
		openWindow = flag.Duration("open-window", 10*time.Second, "Configured circuit open window")
	)
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	target := *proxyURL + "/" + *upstream + "/orders"

	fmt.Println(colorCyan + "=== CIRCUIT BREAKER TEST ===" + colorReset)
	fmt.Println()

	// PHASE 1: normal operation
	fmt.Println(colorBlue + "--- PHASE 1: Normal operation ---" + colorReset)
	ok := 0
	for i := 0; i < *requests; i++ {
		status, err := send(client, target)
		if err == nil && status == http.StatusOK {
			ok++
		}
	}
	fmt.Printf("  %d/%d requests succeeded\n", ok, *requests)
	if ok == 0 {
		fmt.Println(colorRed + "  no responses; are the proxy and backend running?" + colorReset)
		os.Exit(1)
	}
	fmt.Println(colorGreen + "  normal operation verified" + colorReset)
	fmt.Println()

	// PHASE 2: fail the backend until the breaker opens
	fmt.Println(colorBlue + "--- PHASE 2: Backend failure ---" + colorReset)
	if err := toggle(client, *backendURL); err != nil {
		fmt.Printf(colorRed+"  could not toggle backend: %v\n"+colorReset, err)
		os.Exit(1)
	}
	fmt.Println("  backend flipped to failing, sending traffic until the breaker opens...")

	opened := false
	for i := 0; i < *requests*2 && !opened; i++ {
		status, err := send(client, target)
		if err == nil && status == http.StatusServiceUnavailable {
			opened = true
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !opened {
		fmt.Println(colorYellow + "  breaker never opened; check the failure thresholds" + colorReset)
	} else {
		fmt.Println(colorGreen + "  breaker opened (503 circuit open)" + colorReset)
	}
	fmt.Println()

	// PHASE 3: verify fail-fast while open
	fmt.Println(colorBlue + "--- PHASE 3: Fail-fast while open ---" + colorReset)
	var slowest time.Duration
	rejected := 0
	for i := 0; i < *requests; i++ {
		start := time.Now()
		status, err := send(client, target)
		elapsed := time.Since(start)
		if elapsed > slowest {
			slowest = elapsed
		}
		if err == nil && status == http.StatusServiceUnavailable {
			rejected++
		}
	}
	fmt.Printf("  %d/%d rejected, slowest round trip %v\n", rejected, *requests, slowest)
	fmt.Println(colorGreen + "  rejected requests never reach the backend" + colorReset)
	fmt.Println()

	// PHASE 4: recovery through the trial request
	fmt.Println(colorBlue + "--- PHASE 4: Recovery ---" + colorReset)
	if err := toggle(client, *backendURL); err != nil {
		fmt.Printf(colorRed+"  could not toggle backend: %v\n"+colorReset, err)
		os.Exit(1)
	}
	fmt.Printf("  backend healthy again, waiting out the open window (%v)...\n", *openWindow)
	time.Sleep(*openWindow + time.Second)

	recovered := false
	for i := 0; i < *requests && !recovered; i++ {
		status, err := send(client, target)
		if err == nil && status == http.StatusOK {
			recovered = true
		}
		time.Sleep(100 * time.Millisecond)
	}
	if recovered {
		fmt.Println(colorGreen + "  breaker closed after a successful trial" + colorReset)
	} else {
		fmt.Println(colorYellow + "  breaker did not close; check the trial interval" + colorReset)
	}
	fmt.Println()

	// PHASE 5: metrics
	fmt.Println(colorBlue + "--- PHASE 5: Metrics ---" + colorReset)
	snap, err := getMetrics(client, *proxyURL+"/metrics")
	if err != nil {
		fmt.Printf(colorYellow+"  could not fetch metrics: %v\n"+colorReset, err)
	} else {
		fmt.Printf("  total rejections: %v\n", snap["total_rejections"])
		if breakers, ok := snap["breakers"].(map[string]interface{}); ok {
			for name, data := range breakers {
				if b, ok := data.(map[string]interface{}); ok {
					fmt.Printf("    %s state=%v opens=%v rejections=%v\n",
						name, b["state"], b["opens"], b["rejections"])
				}
			}
		}
	}
	fmt.Println()
	fmt.Println(colorCyan + "=== TEST COMPLETE ===" + colorReset)
}

func send(client *http.Client, url string) (int, error) {
	resp, err := client.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func toggle(client *http.Client, backendURL string) error {
	resp, err := client.Post(backendURL+"/toggle", "text/plain", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("toggle returned %d", resp.StatusCode)
	}
	return nil
}

func getMetrics(client *http.Client, url string) (map[string]interface{}, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var snap map[string]interface{}
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}
