package inspection

import (
	"fmt"
	"sync"

	"github.com/zombor/inspectdiff/internal/reportdiff"
)

// ReportKey identifies whose previous findings a submission is compared with
type ReportKey struct {
	UserID    string
	SubjectID string
}

// String encodes the key; the length prefix keeps distinct pairs distinct
func (k ReportKey) String() string {
	return fmt.Sprintf("%d:%s/%s", len(k.UserID), k.UserID, k.SubjectID)
}

// HistoryStore keeps the most recent findings per key
type HistoryStore interface {
	// GetFindings returns the stored findings and whether any were stored
	GetFindings(key ReportKey) ([]reportdiff.Finding, bool, error)

	// PutFindings overwrites the stored findings
	PutFindings(key ReportKey, findings []reportdiff.Finding) error
}

// MemoryHistory is an in-memory HistoryStore
type MemoryHistory struct {
	mu       sync.RWMutex
	findings map[string][]reportdiff.Finding
}

// NewMemoryHistory creates an empty in-memory history
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{
		findings: make(map[string][]reportdiff.Finding),
	}
}

// GetFindings implements HistoryStore
func (m *MemoryHistory) GetFindings(key ReportKey) ([]reportdiff.Finding, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	findings, ok := m.findings[key.String()]
	if !ok {
		return nil, false, nil
	}
	return append([]reportdiff.Finding(nil), findings...), true, nil
}

// PutFindings implements HistoryStore
func (m *MemoryHistory) PutFindings(key ReportKey, findings []reportdiff.Finding) error {
	m.mu.Lock()
	m.findings[key.String()] = append([]reportdiff.Finding(nil), findings...)
	m.mu.Unlock()
	return nil
}

var _ HistoryStore = (*MemoryHistory)(nil)

// keyLocker hands out one mutex per key and forgets it once unused
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free and returns the matching unlock
func (l *keyLocker) Lock(key string) func() {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()

		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// size reports how many keys are currently held or awaited
func (l *keyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
