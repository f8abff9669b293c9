package core

import "github.com/google/uuid"

// NeuronName uniquely identifies a neuron within a topology.
type NeuronName string

// CollateralName uniquely identifies a collateral within a topology.
type CollateralName string

// StimulationID correlates every activation task, response record and
// failed-task entry belonging to one cascade. Callers may supply their
// own (for correlation with an external system); otherwise one is
// minted here.
type StimulationID string

// NewStimulationID mints an opaque short identifier, the first 8 hex
// characters of a uuid4 — enough entropy to avoid collision within a
// process lifetime without forcing callers to read a full uuid in logs.
func NewStimulationID() StimulationID {
	return StimulationID(uuid.NewString()[:8])
}
