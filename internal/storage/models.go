// Package storage persists benchmark run history to SQLite.
package storage

import (
	"fmt"
	"time"
)

// RunMode identifies which benchmark produced a run.
type RunMode string

const (
	ModePipeline RunMode = "pipeline"
	ModePrecount RunMode = "precount"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// BenchRun is one persisted benchmark invocation with its configuration.
type BenchRun struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Mode         RunMode    `json:"mode"`
	CallCount    int        `json:"callCount"`
	NumAccounts  int        `json:"numAccounts"`
	GasPriceGwei int64      `json:"gasPriceGwei"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// ResultRow is one persisted measurement.
type ResultRow struct {
	RunID    string `json:"runId"`
	Contract string `json:"contract"`
	Index    int    `json:"index"`
	GasUsed  uint64 `json:"gasUsed"`
	TxHash   string `json:"txHash"`
}

// NewRunID returns a unique, sortable run identifier.
func NewRunID(mode RunMode, now time.Time) string {
	return fmt.Sprintf("%s-%s", mode, now.UTC().Format("20060102-150405.000000000"))
}
