// Package state records pass history and per-run transfer progress in SQLite.
// Nothing in a pass depends on this data for correctness; it drives the
// history view and lets a pass skip re-downloading runs whose remote
// deletion failed earlier.
package state

import "time"

// PassStatus is the outcome of one pass.
type PassStatus string

// Pass status constants.
const (
	PassStatusRunning   PassStatus = "running"
	PassStatusCompleted PassStatus = "completed"
	PassStatusFailed    PassStatus = "failed"
	// PassStatusSkipped marks a pass abandoned on a transient condition.
	PassStatusSkipped PassStatus = "skipped"
)

// Pass is a recorded polling pass for one input.
type Pass struct {
	ID          string     `json:"id"`
	Input       string     `json:"input"`
	Simulate    bool       `json:"simulate"`
	Status      PassStatus `json:"status"`
	Complete    int        `json:"complete_runs"`
	InProgress  int        `json:"in_progress_runs"`
	Transferred int        `json:"transferred_runs"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// PassCounts are the totals stored when a pass finishes.
type PassCounts struct {
	Complete    int
	InProgress  int
	Transferred int
}

// TransferState is how far a run's transfer got.
type TransferState string

// Transfer states.
const (
	TransferDownloading TransferState = "downloading"
	TransferDownloaded  TransferState = "downloaded"
	TransferDone        TransferState = "done"
	TransferFailed      TransferState = "failed"
)

// Transfer is the last recorded progress of one run of one input.
type Transfer struct {
	Input     string        `json:"input"`
	RunKey    string        `json:"run_key"`
	State     TransferState `json:"state"`
	PassID    string        `json:"pass_id"`
	UpdatedAt time.Time     `json:"updated_at"`
	Error     string        `json:"error,omitempty"`
}

// Store is the state persistence contract.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Pass operations
	StartPass(input string, simulate bool) (*Pass, error)
	CompletePass(id string, status PassStatus, counts PassCounts, errMsg string) error
	GetPass(id string) (*Pass, error)
	ListPasses(limit int) ([]*Pass, error)

	// Transfer operations
	SetTransfer(input, runKey string, st TransferState, passID, errMsg string) error
	GetTransfer(input, runKey string) (*Transfer, error)
	ListTransfers(input string) ([]*Transfer, error)
}
