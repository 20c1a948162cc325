// Package memory is the decision engine's memory system: a short-term window
// of recent events and decisions, an embedding index for similarity lookups,
// and a bounded long-term archive with feedback tracking.
package memory

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegismesh/aegis-meta/internal/cache"
	"github.com/aegismesh/aegis-meta/internal/features"
	"github.com/aegismesh/aegis-meta/internal/models"
)

// DefaultSimilarTTL bounds how long joined similarity results are served from
// cache before the index is consulted again.
const DefaultSimilarTTL = 30 * time.Second

// Options configures a Memory. Zero values fall back to defaults; a nil
// Archive gets an in-memory one and a nil Cache disables memoization.
type Options struct {
	MaxEvents      int
	MaxDecisions   int
	EmbeddingDim   int
	ArchiveMaxSize int
	Archive        Archive
	Cache          cache.Provider
	SimilarTTL     time.Duration
	Logger         *slog.Logger
}

// PatternMatch is a stored pattern annotated with its similarity to a query.
type PatternMatch struct {
	Pattern    models.ActionPattern `json:"pattern"`
	Similarity float64              `json:"similarity"`
}

// Stats is the nested count surface exposed by Statistics.
type Stats struct {
	ShortTerm  ShortTermStats `json:"short_term"`
	LongTerm   LongTermStats  `json:"long_term"`
	Embeddings EmbeddingStats `json:"embeddings"`
}

type ShortTermStats struct {
	Events      int `json:"events"`
	Decisions   int `json:"decisions"`
	ActivePlans int `json:"active_plans"`
}

type LongTermStats struct {
	ArchivedDecisions int `json:"archived_decisions"`
	Patterns          int `json:"patterns"`
}

type EmbeddingStats struct {
	DecisionEmbeddings int `json:"decision_embeddings"`
	PatternEmbeddings  int `json:"pattern_embeddings"`
}

// Memory coordinates the three stores. Decision writes hit the archive, the
// embedding index, and the short-term window under one lock so readers never
// observe a decision in one store but not another.
type Memory struct {
	logger    *slog.Logger
	shortTerm *ShortTerm
	index     *EmbeddingIndex
	archive   Archive
	extractor *features.Extractor
	cache     cache.Provider
	ttl       time.Duration

	mu       sync.Mutex
	patterns map[string]models.ActionPattern
}

// NewMemory assembles a memory system from the options.
func NewMemory(opts Options) *Memory {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	archive := opts.Archive
	if archive == nil {
		archive = NewInMemoryArchive(opts.ArchiveMaxSize)
	}
	provider := opts.Cache
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	ttl := opts.SimilarTTL
	if ttl <= 0 {
		ttl = DefaultSimilarTTL
	}
	dim := opts.EmbeddingDim
	if dim < 1 {
		dim = DefaultEmbeddingDim
	}
	return &Memory{
		logger:    logger,
		shortTerm: NewShortTerm(opts.MaxEvents, opts.MaxDecisions, logger),
		index:     NewEmbeddingIndex(dim),
		archive:   archive,
		extractor: features.NewExtractor(dim),
		cache:     provider,
		ttl:       ttl,
		patterns:  make(map[string]models.ActionPattern),
	}
}

// StoreEvent records an event in the short-term window.
func (m *Memory) StoreEvent(event models.Event) {
	m.shortTerm.StoreEvent(event)
}

// StoreDecision persists a decision to the archive, indexes its embedding,
// and records it in the short-term window. It returns the decision id,
// generating one when the decision carries none.
func (m *Memory) StoreDecision(decision models.Decision, decisionContext map[string]any) (string, error) {
	id := decision.ID
	if id == "" {
		id = uuid.NewString()
		decision.ID = id
	}
	entry := models.ArchiveEntry{
		DecisionID: id,
		Timestamp:  time.Now().UTC(),
		Decision:   decision,
		Context:    decisionContext,
	}
	vec := m.extractor.DecisionEmbedding(decision, decisionContext)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.archive.Put(entry); err != nil {
		return "", fmt.Errorf("archive decision %s: %w", id, err)
	}
	m.index.StoreDecisionEmbedding(id, vec)
	m.shortTerm.StoreDecision(decision)
	m.logger.Debug("decision stored", "decision_id", id, "action", decision.Action)
	return id, nil
}

// UpdateDecisionOutcome attaches feedback to an archived decision. Unknown
// ids return ErrNotFound.
func (m *Memory) UpdateDecisionOutcome(id string, outcome map[string]any, success bool) error {
	if err := m.archive.SetOutcome(id, outcome, success); err != nil {
		return err
	}
	m.logger.Debug("decision outcome recorded", "decision_id", id, "success", success)
	return nil
}

// RetrieveSimilarDecisions returns up to topK archived decisions ranked by
// embedding similarity to the query decision, each annotated with its score.
// Results are memoized through the cache provider for a short TTL; index hits
// whose archive entries were since evicted are dropped.
func (m *Memory) RetrieveSimilarDecisions(ctx context.Context, decision models.Decision, decisionContext map[string]any, topK int) ([]models.SimilarDecision, error) {
	if topK <= 0 {
		topK = 5
	}
	vec := m.extractor.DecisionEmbedding(decision, decisionContext)
	key := similarKey(vec, topK)

	var cached []models.SimilarDecision
	err := cache.GetJSON(ctx, m.cache, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		m.logger.Debug("similarity cache read failed", "error", err)
	}

	neighbors := m.index.FindSimilarDecisions(vec, topK)
	out := make([]models.SimilarDecision, 0, len(neighbors))
	for _, n := range neighbors {
		entry, ok, err := m.archive.Get(n.ID)
		if err != nil {
			return nil, fmt.Errorf("load decision %s: %w", n.ID, err)
		}
		if !ok {
			continue
		}
		out = append(out, models.SimilarDecision{ArchiveEntry: entry, Similarity: n.Similarity})
	}
	if err := cache.SetJSON(ctx, m.cache, key, out, m.ttl); err != nil {
		m.logger.Debug("similarity cache write failed", "error", err)
	}
	return out, nil
}

// Entry returns an archived decision by id.
func (m *Memory) Entry(id string) (models.ArchiveEntry, bool, error) {
	return m.archive.Get(id)
}

// SearchDecisions filters the archive by action, success, and time range,
// newest first.
func (m *Memory) SearchDecisions(filter models.ArchiveFilter) ([]models.ArchiveEntry, error) {
	return m.archive.Search(filter)
}

// RecentEvents returns the most recent short-term events, optionally filtered
// by raw event type.
func (m *Memory) RecentEvents(eventType string, limit int) []models.Event {
	return m.shortTerm.RecentEvents(eventType, limit)
}

// RecentDecisions returns the most recent short-term decisions.
func (m *Memory) RecentDecisions(limit int) []models.Decision {
	return m.shortTerm.RecentDecisions(limit)
}

// AddActivePlan tracks a recovery plan that is currently executing.
func (m *Memory) AddActivePlan(planID string, plan models.RecoveryPlan) {
	m.shortTerm.AddActivePlan(planID, plan)
}

// RemoveActivePlan drops a finished plan.
func (m *Memory) RemoveActivePlan(planID string) {
	m.shortTerm.RemoveActivePlan(planID)
}

// ActivePlans returns the currently tracked plans.
func (m *Memory) ActivePlans() map[string]ActivePlan {
	return m.shortTerm.ActivePlans()
}

// StorePattern records a mined action pattern and indexes its embedding in
// the pattern namespace.
func (m *Memory) StorePattern(pattern models.ActionPattern) error {
	if pattern.ID == "" {
		return errors.New("memory: pattern missing id")
	}
	vec := m.extractor.PatternEmbedding(pattern)
	m.mu.Lock()
	m.patterns[pattern.ID] = pattern
	m.mu.Unlock()
	m.index.StorePatternEmbedding(pattern.ID, vec)
	m.logger.Debug("pattern stored", "pattern_id", pattern.ID, "occurrences", pattern.Occurrences)
	return nil
}

// Pattern returns a stored pattern by id.
func (m *Memory) Pattern(id string) (models.ActionPattern, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patterns[id]
	return p, ok
}

// Patterns returns all stored patterns ordered by id.
func (m *Memory) Patterns() []models.ActionPattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ActionPattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RetrieveSimilarPatterns returns up to topK stored patterns ranked by
// embedding similarity to the query pattern.
func (m *Memory) RetrieveSimilarPatterns(pattern models.ActionPattern, topK int) []PatternMatch {
	if topK <= 0 {
		topK = 5
	}
	vec := m.extractor.PatternEmbedding(pattern)
	neighbors := m.index.FindSimilarPatterns(vec, topK)

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PatternMatch, 0, len(neighbors))
	for _, n := range neighbors {
		p, ok := m.patterns[n.ID]
		if !ok {
			continue
		}
		out = append(out, PatternMatch{Pattern: p, Similarity: n.Similarity})
	}
	return out
}

// Statistics reports nested counts across all stores.
func (m *Memory) Statistics() (Stats, error) {
	archived, err := m.archive.Len()
	if err != nil {
		return Stats{}, fmt.Errorf("archive size: %w", err)
	}
	events, decisions, plans := m.shortTerm.Counts()
	decisionVecs, patternVecs := m.index.Counts()
	m.mu.Lock()
	patterns := len(m.patterns)
	m.mu.Unlock()
	return Stats{
		ShortTerm: ShortTermStats{Events: events, Decisions: decisions, ActivePlans: plans},
		LongTerm:  LongTermStats{ArchivedDecisions: archived, Patterns: patterns},
		Embeddings: EmbeddingStats{
			DecisionEmbeddings: decisionVecs,
			PatternEmbeddings:  patternVecs,
		},
	}, nil
}

// ArchiveLen returns the archive size.
func (m *Memory) ArchiveLen() (int, error) {
	return m.archive.Len()
}

// Close releases the archive.
func (m *Memory) Close() error {
	return m.archive.Close()
}

// similarKey fingerprints a query so equal lookups share a cache entry.
func similarKey(vec []float64, topK int) string {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range vec {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = h.Write(buf[:])
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(topK))
	_, _ = h.Write(buf[:])
	return fmt.Sprintf("aegis:similar:%016x", h.Sum64())
}
