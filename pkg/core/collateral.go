package core

// Collateral is an identity for a typed output channel. Its payload
// type is compile-time only (callers type-assert Signal.Payload);
// at runtime a Collateral is just its name.
type Collateral struct {
	Name CollateralName
}

// NewCollateral creates a named collateral. Collaterals are built once
// by the topology builder and live for the life of the facade.
func NewCollateral(name CollateralName) *Collateral {
	return &Collateral{Name: name}
}

// CreateSignal materializes a payload as a Signal on this collateral.
func (c *Collateral) CreateSignal(payload any) Signal {
	return Signal{CollateralName: c.Name, Payload: payload}
}

// Signal is a materialized (collateral, payload) pair flowing through
// a cascade. It is consumed when fan-out turns it into activation tasks.
type Signal struct {
	CollateralName CollateralName
	Payload        any
}
