package memory

import (
	"errors"
	"sort"
	"sync"

	"github.com/aegismesh/aegis-meta/internal/models"
)

// DefaultArchiveMaxSize bounds the long-term archive; inserting beyond it
// evicts the oldest entries.
const DefaultArchiveMaxSize = 100000

// ErrNotFound reports an archive operation against an unknown decision id.
var ErrNotFound = errors.New("memory: decision not found")

// Archive is long-term decision storage. Implementations evict the entry
// with the smallest timestamp once they grow past their configured size.
type Archive interface {
	Put(entry models.ArchiveEntry) error
	Get(id string) (models.ArchiveEntry, bool, error)
	// SetOutcome records feedback for a stored decision. Unknown ids return
	// ErrNotFound.
	SetOutcome(id string, outcome map[string]any, success bool) error
	// Search returns entries matching the filter, newest first.
	Search(filter models.ArchiveFilter) ([]models.ArchiveEntry, error)
	Len() (int, error)
	Close() error
}

// InMemoryArchive keeps entries in a map with insertion sequence numbers so
// timestamp ties evict and sort deterministically.
type InMemoryArchive struct {
	maxSize int

	mu      sync.RWMutex
	entries map[string]models.ArchiveEntry
	seq     map[string]uint64
	nextSeq uint64
}

// NewInMemoryArchive creates an archive bounded at maxSize entries; values
// below 1 fall back to DefaultArchiveMaxSize.
func NewInMemoryArchive(maxSize int) *InMemoryArchive {
	if maxSize < 1 {
		maxSize = DefaultArchiveMaxSize
	}
	return &InMemoryArchive{
		maxSize: maxSize,
		entries: make(map[string]models.ArchiveEntry),
		seq:     make(map[string]uint64),
	}
}

// Put stores or replaces an entry and evicts the oldest entries while the
// archive is over capacity.
func (a *InMemoryArchive) Put(entry models.ArchiveEntry) error {
	if entry.DecisionID == "" {
		return errors.New("memory: archive entry missing decision id")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.entries[entry.DecisionID]; !ok {
		a.seq[entry.DecisionID] = a.nextSeq
		a.nextSeq++
	}
	a.entries[entry.DecisionID] = entry
	for len(a.entries) > a.maxSize {
		a.evictOldestLocked()
	}
	return nil
}

// Get returns the entry for id and whether it exists.
func (a *InMemoryArchive) Get(id string) (models.ArchiveEntry, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entry, ok := a.entries[id]
	return entry, ok, nil
}

// SetOutcome attaches feedback to a stored decision.
func (a *InMemoryArchive) SetOutcome(id string, outcome map[string]any, success bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.entries[id]
	if !ok {
		return ErrNotFound
	}
	entry.Outcome = outcome
	entry.Success = &success
	a.entries[id] = entry
	return nil
}

// Search filters the archive and returns matches newest first. Timestamp ties
// order by insertion sequence, latest insert first.
func (a *InMemoryArchive) Search(filter models.ArchiveFilter) ([]models.ArchiveEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.entries))
	for id, entry := range a.entries {
		if !matchesFilter(entry, filter) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ei, ej := a.entries[ids[i]], a.entries[ids[j]]
		if !ei.Timestamp.Equal(ej.Timestamp) {
			return ei.Timestamp.After(ej.Timestamp)
		}
		return a.seq[ids[i]] > a.seq[ids[j]]
	})
	if filter.Limit > 0 && len(ids) > filter.Limit {
		ids = ids[:filter.Limit]
	}
	out := make([]models.ArchiveEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.entries[id])
	}
	return out, nil
}

// Len returns the number of stored entries.
func (a *InMemoryArchive) Len() (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries), nil
}

// Close is a no-op for the in-memory archive.
func (a *InMemoryArchive) Close() error { return nil }

func (a *InMemoryArchive) evictOldestLocked() {
	var (
		oldest string
		found  bool
	)
	for id, entry := range a.entries {
		if !found {
			oldest, found = id, true
			continue
		}
		cur := a.entries[oldest]
		if entry.Timestamp.Before(cur.Timestamp) ||
			(entry.Timestamp.Equal(cur.Timestamp) && a.seq[id] < a.seq[oldest]) {
			oldest = id
		}
	}
	if found {
		delete(a.entries, oldest)
		delete(a.seq, oldest)
	}
}

func matchesFilter(entry models.ArchiveEntry, filter models.ArchiveFilter) bool {
	if filter.Action != "" && entry.Decision.Action != filter.Action {
		return false
	}
	if filter.Success != nil {
		if entry.Success == nil || *entry.Success != *filter.Success {
			return false
		}
	}
	if !filter.Start.IsZero() && entry.Timestamp.Before(filter.Start) {
		return false
	}
	if !filter.End.IsZero() && entry.Timestamp.After(filter.End) {
		return false
	}
	return true
}
