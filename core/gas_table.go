// SPDX-License-Identifier: BUSL-1.1
//
// Veridian Core Gas Schedule
// --------------------------
// This file contains the gas-pricing table for every dimension the response
// builder charges against a transaction's gas_limit: per-byte storage,
// per-field-read CPU, per-update RAM, and the base dispatch cost of a call
// or constructor. The numeric values are illustrative — spec.md explicitly
// leaves gas-cost coefficients unspecified — but the schedule's shape (a
// small enum-keyed map with a safe, logged fallback) matches the table this
// was adapted from.
//
// IMPORTANT
//   - Unknown / un-priced dimensions fall back to DefaultGasCost, logged
//     once per missing dimension rather than once per charge, to avoid log
//     spam on a hot path.
//   - All reads from the table are concurrent-safe; the table itself is
//     never mutated after package init.
package core

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// GasDimension tags one of the cost axes the response builder charges
// against. This replaces the teacher's VM-opcode enum: spec.md's engine
// does not price individual opcodes, only the handful of coarse dimensions
// named in §4.G.
type GasDimension byte

const (
	GasStorageByte GasDimension = iota
	GasCPUFieldRead
	GasRAMUpdate
	GasBaseCall
	GasBaseConstructor
)

// DefaultGasCost is charged for any dimension that has slipped through the
// cracks. The value is intentionally punitive to surface a missing entry
// during development rather than silently undercharging.
const DefaultGasCost uint64 = 100_000

// gasTable maps every GasDimension to its base cost. Gas is charged before
// the corresponding unit of work proceeds.
var gasTable = map[GasDimension]uint64{
	GasStorageByte:     50,
	GasCPUFieldRead:    20,
	GasRAMUpdate:       200,
	GasBaseCall:        10_000,
	GasBaseConstructor: 15_000,
}

var loggedMissing sync.Map

// GasCost returns the base gas cost for dimension d. It is lock-free and
// safe for concurrent use by every delivery worker.
func GasCost(d GasDimension) uint64 {
	if cost, ok := gasTable[d]; ok {
		return cost
	}
	if _, already := loggedMissing.LoadOrStore(d, struct{}{}); !already {
		logrus.Warnf("gas_table: missing cost for dimension %d - charging default", d)
	}
	return DefaultGasCost
}
