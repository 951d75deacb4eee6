package core

import "fmt"

// ErrOutOfGas is returned by the charge_gas_for_* methods when a charge
// would underflow the remaining budget.
var ErrOutOfGas = fmt.Errorf("out of gas")

// GasMeter tracks the three running gas totals from §4.G (CPU, RAM,
// storage) against a single gas_limit budget, and supports with_gas's
// nested, capped sub-scopes.
type GasMeter struct {
	limit     uint64
	remaining uint64

	cpu     uint64
	ram     uint64
	storage uint64
}

// NewGasMeter starts a meter with the given gas_limit fully available.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit, remaining: limit}
}

func (m *GasMeter) Remaining() uint64 { return m.remaining }

// Consumed returns the three running totals charged so far.
func (m *GasMeter) Consumed() GasConsumed {
	return GasConsumed{CPU: m.cpu, RAM: m.ram, Storage: m.storage}
}

func (m *GasMeter) charge(amount uint64, bucket *uint64) error {
	if amount > m.remaining {
		return ErrOutOfGas
	}
	m.remaining -= amount
	*bucket += amount
	return nil
}

// ChargeGasForCPU debits amount from the budget and the CPU running total.
func (m *GasMeter) ChargeGasForCPU(amount uint64) error { return m.charge(amount, &m.cpu) }

// ChargeGasForRAM debits amount from the budget and the RAM running total.
func (m *GasMeter) ChargeGasForRAM(amount uint64) error { return m.charge(amount, &m.ram) }

// ChargeGasForStorage debits amount from the budget and the storage running
// total.
func (m *GasMeter) ChargeGasForStorage(amount uint64) error { return m.charge(amount, &m.storage) }

// WithGas runs fn in a nested scope capped at amount (or the remaining
// budget, whichever is smaller), returning whatever fn returns and
// crediting any unused portion of the sub-budget back to the outer scope
// on exit, per §4.G.
func (m *GasMeter) WithGas(amount uint64, fn func(sub *GasMeter) error) error {
	if amount > m.remaining {
		amount = m.remaining
	}
	sub := NewGasMeter(amount)
	err := fn(sub)
	m.remaining -= sub.limit - sub.remaining
	m.cpu += sub.cpu
	m.ram += sub.ram
	m.storage += sub.storage
	return err
}
