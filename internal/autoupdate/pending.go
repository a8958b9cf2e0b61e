package autoupdate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/obentoo/ebumper/internal/gate"
)

// Error variables for pending list errors
var (
	// ErrPendingCorrupted is returned when the pending file cannot be parsed
	ErrPendingCorrupted = errors.New("pending file is corrupted")
	// ErrPackageNotInPending is returned when a package is not found in pending updates
	ErrPackageNotInPending = errors.New("package not found in pending updates")
	// ErrInvalidStatusTransition is returned when an invalid status transition is attempted
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// UpdateStatus represents the status of a queue entry.
type UpdateStatus string

const (
	// StatusPending is an Update decision waiting to be applied
	StatusPending UpdateStatus = "pending"
	// StatusHold is a low-confidence candidate waiting for review
	StatusHold UpdateStatus = "hold"
	// StatusConflict is a candidate older than, or incomparable to, the overlay
	StatusConflict UpdateStatus = "conflict"
	// StatusApplied means the new ebuild was written
	StatusApplied UpdateStatus = "applied"
	// StatusFailed means applying the update failed
	StatusFailed UpdateStatus = "failed"
)

// ValidStatuses returns all valid update statuses
func ValidStatuses() []UpdateStatus {
	return []UpdateStatus{StatusPending, StatusHold, StatusConflict, StatusApplied, StatusFailed}
}

// IsValidStatus checks if a status is valid
func IsValidStatus(s UpdateStatus) bool {
	return lo.Contains(ValidStatuses(), s)
}

// NeedsReview reports whether the status belongs to the review queue.
func (s UpdateStatus) NeedsReview() bool {
	return s == StatusHold || s == StatusConflict
}

// StatusForDecision maps a decision onto a queue status. NoOp has none and
// removes the package from the queue.
func StatusForDecision(kind gate.DecisionKind) (UpdateStatus, bool) {
	switch kind {
	case gate.Update:
		return StatusPending, true
	case gate.Hold:
		return StatusHold, true
	case gate.Conflict:
		return StatusConflict, true
	default:
		return "", false
	}
}

// statusTransitions lists what SetStatus accepts. Hold and conflict entries
// only change through a new check cycle.
var statusTransitions = map[UpdateStatus][]UpdateStatus{
	StatusPending: {StatusApplied, StatusFailed},
	StatusFailed:  {StatusApplied, StatusFailed},
}

// PendingUpdate is one queue entry.
type PendingUpdate struct {
	// Package is the full package name (category/package)
	Package string `json:"package"`
	// CurrentVersion is the version currently in the overlay
	CurrentVersion string `json:"current_version"`
	// NewVersion is the consensus candidate
	NewVersion string       `json:"new_version"`
	Status     UpdateStatus `json:"status"`
	Confidence float64      `json:"confidence"`
	Reason     string       `json:"reason,omitempty"`
	// Notes describe the losing consensus groups
	Notes []string `json:"notes,omitempty"`
	// Sources are the origins that reported NewVersion
	Sources []string `json:"sources,omitempty"`
	// DetectedAt is when NewVersion was first queued
	DetectedAt time.Time `json:"detected_at"`
	// Error contains error message if status is failed
	Error string `json:"error,omitempty"`
}

// pendingFile represents the JSON structure stored on disk
type pendingFile struct {
	Updates map[string]PendingUpdate `json:"updates"`
}

// PendingList is the persisted update and review queue.
type PendingList struct {
	Updates map[string]PendingUpdate `json:"updates"`
	path    string
	mu      sync.RWMutex
	nowFunc func() time.Time
}

// PendingListOption is a functional option for configuring PendingList
type PendingListOption func(*PendingList)

// WithPendingNowFunc sets a custom time function for testing
func WithPendingNowFunc(fn func() time.Time) PendingListOption {
	return func(p *PendingList) {
		p.nowFunc = fn
	}
}

// NewPendingList loads dir/pending.json, starting empty when the file is
// missing or corrupted.
func NewPendingList(configDir string, opts ...PendingListOption) (*PendingList, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pending directory: %w", err)
	}

	pending := &PendingList{
		Updates: make(map[string]PendingUpdate),
		path:    filepath.Join(configDir, "pending.json"),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(pending)
	}

	if err := pending.load(); err != nil && !os.IsNotExist(err) {
		// Overwritten on next save
		pending.Updates = make(map[string]PendingUpdate)
	}

	return pending, nil
}

func (p *PendingList) load() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}

	var pf pendingFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingCorrupted, err)
	}
	if pf.Updates != nil {
		p.Updates = pf.Updates
	}
	return nil
}

// Add inserts or replaces the entry of update.Package. DetectedAt is kept
// when the same version was already queued.
func (p *PendingList) Add(update PendingUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.Updates[update.Package]; ok && prev.NewVersion == update.NewVersion && update.DetectedAt.IsZero() {
		update.DetectedAt = prev.DetectedAt
	}
	if update.DetectedAt.IsZero() {
		update.DetectedAt = p.nowFunc()
	}
	if !IsValidStatus(update.Status) {
		update.Status = StatusPending
	}

	p.Updates[update.Package] = update
	return p.saveUnsafe()
}

// Get retrieves a copy of the entry for pkg.
func (p *PendingList) Get(pkg string) (*PendingUpdate, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	update, exists := p.Updates[pkg]
	if !exists {
		return nil, false
	}
	return &update, true
}

// SetStatus moves pkg to status. errMsg is kept only for StatusFailed.
func (p *PendingList) SetStatus(pkg string, status UpdateStatus, errMsg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	update, exists := p.Updates[pkg]
	if !exists {
		return fmt.Errorf("%w: %s", ErrPackageNotInPending, pkg)
	}
	if !IsValidStatus(status) || !lo.Contains(statusTransitions[update.Status], status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, update.Status, status)
	}

	update.Status = status
	update.Error = ""
	if status == StatusFailed {
		update.Error = errMsg
	}

	p.Updates[pkg] = update
	return p.saveUnsafe()
}

// List returns all entries sorted by package.
func (p *PendingList) List() []PendingUpdate {
	return p.filter(func(PendingUpdate) bool { return true })
}

// ListByStatus returns the entries with status, sorted by package.
func (p *PendingList) ListByStatus(status UpdateStatus) []PendingUpdate {
	return p.filter(func(u PendingUpdate) bool { return u.Status == status })
}

// ReviewQueue returns the hold and conflict entries, sorted by package.
func (p *PendingList) ReviewQueue() []PendingUpdate {
	return p.filter(func(u PendingUpdate) bool { return u.Status.NeedsReview() })
}

func (p *PendingList) filter(keep func(PendingUpdate) bool) []PendingUpdate {
	p.mu.RLock()
	defer p.mu.RUnlock()

	updates := make([]PendingUpdate, 0, len(p.Updates))
	for _, update := range p.Updates {
		if keep(update) {
			updates = append(updates, update)
		}
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].Package < updates[j].Package })
	return updates
}

// Save persists the pending list to disk.
func (p *PendingList) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saveUnsafe()
}

// saveUnsafe writes through a temp file and rename. Caller holds the write lock.
func (p *PendingList) saveUnsafe() error {
	data, err := json.MarshalIndent(pendingFile{Updates: p.Updates}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pending list: %w", err)
	}

	tmpPath := p.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write pending file: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename pending file: %w", err)
	}
	return nil
}

// Delete removes pkg from the queue. Deleting an absent package is not an error.
func (p *PendingList) Delete(pkg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.Updates[pkg]; !ok {
		return nil
	}
	delete(p.Updates, pkg)
	return p.saveUnsafe()
}

// Clear removes all entries from the pending list.
func (p *PendingList) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Updates = make(map[string]PendingUpdate)
	return p.saveUnsafe()
}

// Len returns the number of entries in the pending list.
func (p *PendingList) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.Updates)
}

// Has checks if a package exists in the pending list.
func (p *PendingList) Has(pkg string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.Updates[pkg]
	return exists
}
