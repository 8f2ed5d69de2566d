package outcome

import (
	"errors"
	"net"
	"net/http"
	"syscall"
)

// Outcome is the tri-state classification of a completed call.
type Outcome int

const (
	// Success counts toward the success tally.
	Success Outcome = iota
	// Failure counts toward the failure tally.
	Failure
	// Ignore excludes the call from both tallies. Used for calls that never
	// reached the remote peer and therefore carry no information about its
	// health.
	Ignore
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Ignore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Strategy classifies a completed call from its response headers or error
// alone, synchronously. Exactly one of res and err is set.
type Strategy interface {
	Classify(res *http.Response, err error) Outcome
}

// ContentStrategy classifies a call from the response body in addition to
// its headers. The transport delivers the body after the caller has fully
// consumed or closed it, which may be long after the call itself returned;
// error cases without a body still go through Classify.
type ContentStrategy interface {
	Strategy

	// ClassifyContent receives the response and as much of its body as was
	// read, capped by the transport's buffer limit.
	ClassifyContent(res *http.Response, body []byte) Outcome
}

// StrategyFunc adapts a plain function to the Strategy interface.
type StrategyFunc func(res *http.Response, err error) Outcome

func (f StrategyFunc) Classify(res *http.Response, err error) Outcome {
	return f(res, err)
}

type defaultStrategy struct{}

// Default returns the built-in headers-only strategy: errors that signal
// the request never reached the peer are ignored, any other error is a
// failure, server-error statuses are failures, success statuses are
// successes and everything else is ignored.
func Default() Strategy {
	return defaultStrategy{}
}

func (defaultStrategy) Classify(res *http.Response, err error) Outcome {
	if err != nil {
		if NeverReachedPeer(err) {
			return Ignore
		}
		return Failure
	}
	switch {
	case res.StatusCode >= http.StatusInternalServerError:
		return Failure
	case res.StatusCode >= http.StatusOK && res.StatusCode < http.StatusMultipleChoices:
		return Success
	default:
		return Ignore
	}
}

// NeverReachedPeer reports whether err indicates the request was never sent
// to the remote peer: dial failures, DNS resolution failures and refused
// connections. Such calls say nothing about the peer's ability to serve.
func NeverReachedPeer(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
