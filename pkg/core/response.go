package core

// ResponseRecord is the observation delivered to a trace callback.
// Produced once per dispatched output, or once with a nil OutputSignal
// when a handler returns nothing or fails.
type ResponseRecord struct {
	InputSignal     *Signal
	OutputSignal    *Signal
	ContextSnapshot map[NeuronName]any
	QueueLength     int
	StimulationID   StimulationID
	Hops            int
	Err             error
}

// OnResponse is the trace callback signature. Its return may represent
// a deferred (future) completion: implementations that need to await it
// return a non-nil Async channel; Done stimuli are expected to send
// exactly once on it.
type OnResponse func(ResponseRecord) <-chan error
