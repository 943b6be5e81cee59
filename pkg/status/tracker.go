// Package status tracks transfer lifecycle state in memory. Nothing is
// persisted; state exists for the lifetime of the process, matching the
// single-slot execution model where at most a handful of entries are live.
package status

import (
	"sync"
	"time"

	"github.com/hollowaylabs/atfetch/pkg/core"
)

// Tracker tracks the status of transfers
type Tracker struct {
	mu        sync.RWMutex
	transfers map[string]*TransferStatus
	order     []string
}

// TransferStatus represents the current status of a transfer
type TransferStatus struct {
	ID         string             `json:"id"`
	State      core.TransferState `json:"state"`
	Method     core.Method        `json:"method"`
	URL        string             `json:"url"`
	Dest       string             `json:"dest"`
	StartTime  time.Time          `json:"start_time"`
	UpdateTime time.Time          `json:"update_time"`
	EndTime    *time.Time         `json:"end_time,omitempty"`
	BytesTotal int64              `json:"bytes_total"`
	BytesDone  int64              `json:"bytes_done"`
	Progress   float64            `json:"progress"` // 0-100
	Error      string             `json:"error,omitempty"`
}

// New creates a new status tracker
func New() *Tracker {
	return &Tracker{transfers: make(map[string]*TransferStatus)}
}

// Register registers a newly admitted transfer
func (t *Tracker) Register(req *core.TransferRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dest := req.DownloadPath
	if dest == "" {
		dest = "serial"
	}
	now := time.Now()
	t.transfers[req.ID] = &TransferStatus{
		ID:         req.ID,
		State:      core.StateQueued,
		Method:     req.Method,
		URL:        req.URL,
		Dest:       dest,
		StartTime:  now,
		UpdateTime: now,
		BytesTotal: -1,
	}
	t.order = append(t.order, req.ID)
}

// Start marks a transfer as started
func (t *Tracker) Start(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if status, exists := t.transfers[id]; exists {
		status.State = core.StateRunning
		status.UpdateTime = time.Now()
	}
}

// Update updates transfer progress
func (t *Tracker) Update(id string, bytesDone, bytesTotal int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if status, exists := t.transfers[id]; exists {
		status.BytesDone = bytesDone
		status.BytesTotal = bytesTotal
		status.UpdateTime = time.Now()
		if bytesTotal > 0 {
			status.Progress = float64(bytesDone) / float64(bytesTotal) * 100
		}
	}
}

// Complete marks a transfer as completed
func (t *Tracker) Complete(id string) {
	t.finish(id, core.StateCompleted, nil)
}

// Fail marks a transfer as failed
func (t *Tracker) Fail(id string, err error) {
	t.finish(id, core.StateFailed, err)
}

// Cancel marks a transfer as canceled
func (t *Tracker) Cancel(id string) {
	t.finish(id, core.StateCanceled, nil)
}

func (t *Tracker) finish(id string, state core.TransferState, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, exists := t.transfers[id]
	if !exists {
		return
	}
	status.State = state
	if state == core.StateCompleted {
		status.Progress = 100.0
	}
	if err != nil {
		status.Error = err.Error()
	}
	now := time.Now()
	status.EndTime = &now
	status.UpdateTime = now
}

// List returns all transfer statuses in admission order
func (t *Tracker) List() []*TransferStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*TransferStatus, 0, len(t.order))
	for _, id := range t.order {
		if status, exists := t.transfers[id]; exists {
			statusCopy := *status
			result = append(result, &statusCopy)
		}
	}
	return result
}

// ListByState returns transfers in a specific state
func (t *Tracker) ListByState(state core.TransferState) []*TransferStatus {
	result := make([]*TransferStatus, 0)
	for _, status := range t.List() {
		if status.State == state {
			result = append(result, status)
		}
	}
	return result
}

// Clean removes finished transfers older than maxAge and returns how many
// were removed
func (t *Tracker) Clean(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, status := range t.transfers {
		if status.State == core.StateQueued || status.State == core.StateRunning {
			continue
		}
		if status.EndTime != nil && status.EndTime.Before(cutoff) {
			delete(t.transfers, id)
			removed++
		}
	}
	if removed > 0 {
		kept := t.order[:0]
		for _, id := range t.order {
			if _, exists := t.transfers[id]; exists {
				kept = append(kept, id)
			}
		}
		t.order = kept
	}
	return removed
}
