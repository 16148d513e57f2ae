// Package bench implements the two gas benchmarks: the multi-account
// transaction pipeliner and the precount stepper.
package bench

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// ArgFactory produces the argument list for a call, as a pure function of
// the call index. Implementations must be stateless.
type ArgFactory func(i int) []interface{}

// LeafArgs is the standard deposit argument factory: one unique bytes32 leaf
// per call index.
func LeafArgs() ArgFactory {
	return func(i int) []interface{} {
		return []interface{}{crypto.Keccak256Hash([]byte(fmt.Sprintf("leaf-%d", i)))}
	}
}

// Observer receives submission and confirmation events for live metrics.
// Implementations must be cheap; the pipeliner calls these on its hot path.
type Observer interface {
	TxSent(contract string)
	ReceiptCollected(contract string, gasUsed uint64)
}

// Result is one benchmark measurement, in submission order.
type Result struct {
	Index   int    // Call index (pipeline) or checkpoint exponent (precount)
	GasUsed uint64 // Gas consumed by the measured transaction
	TxHash  string // Transaction identifier
}

// GasValues extracts the gas column from results, preserving order.
func GasValues(results []Result) []uint64 {
	gas := make([]uint64, len(results))
	for i, r := range results {
		gas[i] = r.GasUsed
	}
	return gas
}
