package circuitbreaker

// Listener observes a circuit breaker. Implementations are invoked
// synchronously on the goroutine performing the transition or report, in
// registration order. A panicking listener is recovered and logged; it never
// aborts the transition or the in-flight request.
type Listener interface {
	// OnStateChanged is called after the breaker moves from one state to
	// another.
	OnStateChanged(name string, from, to State)

	// OnCounterUpdated is called after an outcome has been recorded into
	// the sliding window.
	OnCounterUpdated(name string, snapshot Snapshot)

	// OnRequestRejected is called when CanRequest turns a caller away.
	// Rejected requests are never recorded into the counter.
	OnRequestRejected(name string)
}

// ListenerFuncs adapts plain functions to the Listener interface. Nil
// fields are no-ops.
type ListenerFuncs struct {
	StateChanged    func(name string, from, to State)
	CounterUpdated  func(name string, snapshot Snapshot)
	RequestRejected func(name string)
}

func (l ListenerFuncs) OnStateChanged(name string, from, to State) {
	if l.StateChanged != nil {
		l.StateChanged(name, from, to)
	}
}

func (l ListenerFuncs) OnCounterUpdated(name string, snapshot Snapshot) {
	if l.CounterUpdated != nil {
		l.CounterUpdated(name, snapshot)
	}
}

func (l ListenerFuncs) OnRequestRejected(name string) {
	if l.RequestRejected != nil {
		l.RequestRejected(name)
	}
}
