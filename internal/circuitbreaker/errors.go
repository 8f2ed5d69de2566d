package circuitbreaker

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen matches any breaker rejection via errors.Is, regardless of
// which breaker rejected the request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// OpenStateError is the fail-fast error surfaced when a request is rejected
// because its breaker is open. It is distinguishable from a failed remote
// call so callers can branch on "blocked by breaker" separately.
type OpenStateError struct {
	// Name is the name of the breaker that rejected the request.
	Name string
}

func (e *OpenStateError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open: request rejected", e.Name)
}

func (e *OpenStateError) Is(target error) bool {
	return target == ErrCircuitOpen
}
