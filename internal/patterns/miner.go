package patterns

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/aegismesh/aegis-meta/internal/models"
)

// Store abstracts persistence for mined patterns.
type Store interface {
	StorePatterns(ctx context.Context, patterns []models.ActionPattern) error
}

// Miner aggregates archived decisions into per-(event type, action) patterns:
// how often an action was taken for a class of event and how it worked out.
type Miner struct {
	store  Store
	logger *slog.Logger
}

// NewMiner constructs a Miner; store may be nil for dry runs.
func NewMiner(logger *slog.Logger, store Store) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{store: store, logger: logger}
}

// Mine analyses archive entries and returns aggregated action patterns,
// most frequent first. Entries without a classified event type in their
// context fall into the "unknown" bucket. Success rates only count entries
// that have received feedback.
func (m *Miner) Mine(ctx context.Context, entries []models.ArchiveEntry) ([]models.ActionPattern, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	stats := make(map[patternKey]*actionAggregate)
	for _, entry := range entries {
		key := patternKey{
			eventType: entryEventType(entry),
			action:    entry.Decision.Action,
		}
		agg := ensureAggregate(stats, key)
		agg.occurrences++
		agg.confidenceSum += entry.Decision.Confidence
		if entry.Success != nil {
			agg.evaluated++
			if *entry.Success {
				agg.successes++
			}
		}
		if entry.Timestamp.After(agg.lastSeen) {
			agg.lastSeen = entry.Timestamp
		}
	}

	patterns := make([]models.ActionPattern, 0, len(stats))
	for key, agg := range stats {
		pattern := models.ActionPattern{
			ID:            string(key.eventType) + ":" + string(key.action),
			EventType:     key.eventType,
			Action:        key.action,
			Occurrences:   agg.occurrences,
			Successes:     agg.successes,
			AvgConfidence: agg.confidenceSum / float64(agg.occurrences),
			LastSeen:      agg.lastSeen,
		}
		if agg.evaluated > 0 {
			pattern.SuccessRate = float64(agg.successes) / float64(agg.evaluated)
		}
		patterns = append(patterns, pattern)
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Occurrences != patterns[j].Occurrences {
			return patterns[i].Occurrences > patterns[j].Occurrences
		}
		return patterns[i].ID < patterns[j].ID
	})

	if m.store != nil && len(patterns) > 0 {
		if err := m.store.StorePatterns(ctx, patterns); err != nil {
			m.logger.Warn("pattern store failed", slog.Any("error", err))
		}
	}

	return patterns, nil
}

type patternKey struct {
	eventType models.EventType
	action    models.Action
}

type actionAggregate struct {
	occurrences   int
	evaluated     int
	successes     int
	confidenceSum float64
	lastSeen      time.Time
}

func ensureAggregate(m map[patternKey]*actionAggregate, key patternKey) *actionAggregate {
	agg, ok := m[key]
	if !ok {
		agg = &actionAggregate{}
		m[key] = agg
	}
	return agg
}

// entryEventType reads the classified event type a decision was stored with.
func entryEventType(entry models.ArchiveEntry) models.EventType {
	if raw, ok := entry.Context["event_type"]; ok {
		if s, ok := raw.(string); ok && s != "" {
			return models.EventType(s)
		}
	}
	return models.EventTypeUnknown
}
