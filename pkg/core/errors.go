package core

import "errors"

// Topology construction errors (fatal, returned from topology.Build).
var (
	ErrEmptyNeuronName      = errors.New("neuron name must not be empty")
	ErrDuplicateNeuronName  = errors.New("duplicate neuron name")
	ErrDuplicateCollateral  = errors.New("collateral claimed by more than one neuron")
	ErrMissingDendriteInput = errors.New("dendrite has no input collateral")
)

// Runtime errors recorded against individual failed tasks. The cascade
// keeps running other branches when one of these fires; none of them
// aborts the whole stimulation (see pkg/cascade).
var (
	ErrSubscriberMissing = errors.New("subscriber not found for activation task")
	ErrHandlerTimeout    = errors.New("handler did not settle within maxDuration")
	ErrHopCapExceeded    = errors.New("neuron exceeded maxNeuronHops for this stimulation")
	ErrAborted           = errors.New("stimulation aborted")
	ErrInvalidEmission   = errors.New("reaction emitted a signal outside the owning neuron's axon")
)

// ErrStimulationFailed is the representative error a completion future
// rejects with when one or more tasks failed and no single onResponse
// error takes precedence.
var ErrStimulationFailed = errors.New("stimulation completed with failed task(s)")
