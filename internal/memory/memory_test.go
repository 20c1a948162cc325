package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aegismesh/aegis-meta/internal/cache"
	"github.com/aegismesh/aegis-meta/internal/models"
)

func testEntry(id string, action models.Action, ts time.Time) models.ArchiveEntry {
	return models.ArchiveEntry{
		DecisionID: id,
		Timestamp:  ts,
		Decision:   models.Decision{ID: id, Action: action, Confidence: 0.8},
	}
}

func TestStoreDecisionGeneratesID(t *testing.T) {
	m := NewMemory(Options{})
	id, err := m.StoreDecision(models.Decision{Action: models.ActionRestartPod, Confidence: 0.9}, nil)
	if err != nil {
		t.Fatalf("store decision: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated decision id")
	}
	entry, ok, err := m.archive.Get(id)
	if err != nil || !ok {
		t.Fatalf("archived entry missing: ok=%v err=%v", ok, err)
	}
	if entry.Decision.ID != id {
		t.Fatalf("archived decision id = %q, want %q", entry.Decision.ID, id)
	}
	stats, err := m.Statistics()
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.ShortTerm.Decisions != 1 || stats.LongTerm.ArchivedDecisions != 1 || stats.Embeddings.DecisionEmbeddings != 1 {
		t.Fatalf("unexpected stats after store: %+v", stats)
	}
}

func TestStoreDecisionKeepsProvidedID(t *testing.T) {
	m := NewMemory(Options{})
	id, err := m.StoreDecision(models.Decision{ID: "dec-1", Action: models.ActionScaleUp}, nil)
	if err != nil {
		t.Fatalf("store decision: %v", err)
	}
	if id != "dec-1" {
		t.Fatalf("id = %q, want dec-1", id)
	}
}

func TestUpdateDecisionOutcome(t *testing.T) {
	m := NewMemory(Options{})
	id, err := m.StoreDecision(models.Decision{Action: models.ActionRestartPod}, nil)
	if err != nil {
		t.Fatalf("store decision: %v", err)
	}
	if err := m.UpdateDecisionOutcome(id, map[string]any{"resolution": "pod healthy"}, true); err != nil {
		t.Fatalf("update outcome: %v", err)
	}
	entry, ok, _ := m.archive.Get(id)
	if !ok {
		t.Fatal("entry missing after outcome update")
	}
	if entry.Success == nil || !*entry.Success {
		t.Fatalf("success = %v, want true", entry.Success)
	}
	if entry.Outcome["resolution"] != "pod healthy" {
		t.Fatalf("outcome = %v", entry.Outcome)
	}

	if err := m.UpdateDecisionOutcome("no-such-id", nil, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id error = %v, want ErrNotFound", err)
	}
}

func TestRetrieveSimilarDecisionsOrdering(t *testing.T) {
	m := NewMemory(Options{})
	ctxLow := map[string]any{"cpu_usage": 10.0, "memory_usage": 20.0, "error_rate": 1.0}
	ctxHigh := map[string]any{"cpu_usage": 95.0, "memory_usage": 90.0, "error_rate": 40.0}

	if _, err := m.StoreDecision(models.Decision{ID: "low", Action: models.ActionDoNothing, Confidence: 0.5}, ctxLow); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := m.StoreDecision(models.Decision{ID: "high", Action: models.ActionScaleUp, Confidence: 0.9}, ctxHigh); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := m.RetrieveSimilarDecisions(context.Background(),
		models.Decision{Action: models.ActionScaleUp, Confidence: 0.9}, ctxHigh, 5)
	if err != nil {
		t.Fatalf("retrieve similar: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].DecisionID != "high" {
		t.Fatalf("best match = %q, want high", got[0].DecisionID)
	}
	if got[0].Similarity < 0.99 {
		t.Fatalf("self similarity = %f, want ~1", got[0].Similarity)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Similarity > got[i-1].Similarity {
			t.Fatalf("similarities not non-increasing: %f after %f", got[i].Similarity, got[i-1].Similarity)
		}
	}
}

func TestRetrieveSimilarSkipsEvictedEntries(t *testing.T) {
	m := NewMemory(Options{ArchiveMaxSize: 2})
	for _, id := range []string{"a", "b", "c"} {
		if _, err := m.StoreDecision(models.Decision{ID: id, Action: models.ActionRestartPod}, nil); err != nil {
			t.Fatalf("store %s: %v", id, err)
		}
	}
	// "a" is evicted from the archive but still indexed.
	got, err := m.RetrieveSimilarDecisions(context.Background(),
		models.Decision{Action: models.ActionRestartPod}, nil, 3)
	if err != nil {
		t.Fatalf("retrieve similar: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2 after eviction", len(got))
	}
	for _, s := range got {
		if s.DecisionID == "a" {
			t.Fatal("evicted decision surfaced in similarity results")
		}
	}
}

type countingCache struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
	sets int
}

func (c *countingCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (c *countingCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = value
	return nil
}

func (c *countingCache) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}

func (c *countingCache) Del(context.Context, string) error { return nil }
func (c *countingCache) Close() error                      { return nil }

func TestRetrieveSimilarDecisionsMemoized(t *testing.T) {
	cc := &countingCache{}
	m := NewMemory(Options{Cache: cc})
	if _, err := m.StoreDecision(models.Decision{ID: "only", Action: models.ActionScaleDown}, nil); err != nil {
		t.Fatalf("store: %v", err)
	}

	query := models.Decision{Action: models.ActionScaleDown}
	first, err := m.RetrieveSimilarDecisions(context.Background(), query, nil, 3)
	if err != nil {
		t.Fatalf("first retrieve: %v", err)
	}
	second, err := m.RetrieveSimilarDecisions(context.Background(), query, nil, 3)
	if err != nil {
		t.Fatalf("second retrieve: %v", err)
	}
	if cc.gets != 2 || cc.sets != 1 {
		t.Fatalf("cache traffic gets=%d sets=%d, want 2/1", cc.gets, cc.sets)
	}
	if len(first) != 1 || len(second) != 1 || first[0].DecisionID != second[0].DecisionID {
		t.Fatalf("cached result diverged: %v vs %v", first, second)
	}
}

func TestInMemoryArchiveEvictsOldest(t *testing.T) {
	a := NewInMemoryArchive(3)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		if err := a.Put(testEntry(id, models.ActionRestartPod, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	n, _ := a.Len()
	if n != 3 {
		t.Fatalf("len = %d, want 3", n)
	}
	for _, id := range []string{"d1", "d2"} {
		if _, ok, _ := a.Get(id); ok {
			t.Fatalf("%s should have been evicted", id)
		}
	}
	for _, id := range []string{"d3", "d4", "d5"} {
		if _, ok, _ := a.Get(id); !ok {
			t.Fatalf("%s missing, expected it retained", id)
		}
	}
}

func TestInMemoryArchiveSearch(t *testing.T) {
	a := NewInMemoryArchive(0)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	e1 := testEntry("d1", models.ActionRestartPod, base)
	e2 := testEntry("d2", models.ActionScaleUp, base.Add(time.Minute))
	yes := true
	e2.Success = &yes
	e3 := testEntry("d3", models.ActionScaleUp, base.Add(2*time.Minute))
	no := false
	e3.Success = &no
	for _, e := range []models.ArchiveEntry{e1, e2, e3} {
		if err := a.Put(e); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	got, err := a.Search(models.ArchiveFilter{Action: models.ActionScaleUp})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 || got[0].DecisionID != "d3" || got[1].DecisionID != "d2" {
		t.Fatalf("action search = %v, want [d3 d2]", ids(got))
	}

	got, _ = a.Search(models.ArchiveFilter{Success: &yes})
	if len(got) != 1 || got[0].DecisionID != "d2" {
		t.Fatalf("success search = %v, want [d2]", ids(got))
	}

	got, _ = a.Search(models.ArchiveFilter{Start: base.Add(30 * time.Second), End: base.Add(90 * time.Second)})
	if len(got) != 1 || got[0].DecisionID != "d2" {
		t.Fatalf("range search = %v, want [d2]", ids(got))
	}

	got, _ = a.Search(models.ArchiveFilter{Limit: 2})
	if len(got) != 2 || got[0].DecisionID != "d3" {
		t.Fatalf("limited search = %v, want newest two", ids(got))
	}
}

func ids(entries []models.ArchiveEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.DecisionID
	}
	return out
}

func TestEmbeddingIndexPadsAndOverwrites(t *testing.T) {
	x := NewEmbeddingIndex(8)
	x.StoreDecisionEmbedding("d1", []float64{1, 2})
	x.StoreDecisionEmbedding("d1", []float64{1, 2}) // overwrite, no duplicate

	got := x.FindSimilarDecisions([]float64{1, 2}, 10)
	if len(got) != 1 {
		t.Fatalf("got %d neighbors, want 1", len(got))
	}
	if got[0].Similarity < 0.99 {
		t.Fatalf("padded self similarity = %f, want ~1", got[0].Similarity)
	}
	decisions, _ := x.Counts()
	if decisions != 1 {
		t.Fatalf("indexed decisions = %d, want 1", decisions)
	}
}

func TestEmbeddingIndexTiesKeepInsertionOrder(t *testing.T) {
	x := NewEmbeddingIndex(4)
	vec := []float64{1, 0, 0, 0}
	x.StoreDecisionEmbedding("first", vec)
	x.StoreDecisionEmbedding("second", vec)
	x.StoreDecisionEmbedding("third", vec)

	got := x.FindSimilarDecisions(vec, 3)
	want := []string{"first", "second", "third"}
	for i, n := range got {
		if n.ID != want[i] {
			t.Fatalf("tie order[%d] = %q, want %q", i, n.ID, want[i])
		}
	}
}

func TestShortTermTrailingWindow(t *testing.T) {
	s := NewShortTerm(10, 10, nil)
	for _, id := range []string{"e1", "e2", "e3", "e4", "e5"} {
		s.StoreEvent(models.Event{ID: id, Type: "pod_crash"})
	}
	s.StoreEvent(models.Event{ID: "e6", Type: "cpu_spike"})

	got := s.RecentEvents("", 2)
	if len(got) != 2 || got[0].ID != "e5" || got[1].ID != "e6" {
		t.Fatalf("recent window = %v, want [e5 e6] oldest first", eventIDs(got))
	}

	got = s.RecentEvents("pod_crash", 2)
	if len(got) != 2 || got[0].ID != "e4" || got[1].ID != "e5" {
		t.Fatalf("filtered window = %v, want [e4 e5]", eventIDs(got))
	}
}

func eventIDs(events []models.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestShortTermRingEviction(t *testing.T) {
	s := NewShortTerm(3, 3, nil)
	for i := 0; i < 5; i++ {
		s.StoreEvent(models.Event{ID: string(rune('a' + i))})
	}
	events, _, _ := s.Counts()
	if events != 3 {
		t.Fatalf("events = %d, want 3 after eviction", events)
	}
	got := s.RecentEvents("", 10)
	if len(got) != 3 || got[0].ID != "c" {
		t.Fatalf("oldest survivor = %q, want c", got[0].ID)
	}
}

func TestActivePlans(t *testing.T) {
	m := NewMemory(Options{})
	plan := models.RecoveryPlan{Action: models.ActionRestartPod, Steps: []models.PlanStep{{Order: 1, Action: "restart_pod"}}}
	m.AddActivePlan("plan-1", plan)

	plans := m.ActivePlans()
	if len(plans) != 1 {
		t.Fatalf("active plans = %d, want 1", len(plans))
	}
	if plans["plan-1"].Plan.Action != models.ActionRestartPod {
		t.Fatalf("plan action = %q", plans["plan-1"].Plan.Action)
	}
	// Mutating the snapshot must not touch the store.
	delete(plans, "plan-1")
	if got := m.ActivePlans(); len(got) != 1 {
		t.Fatal("snapshot mutation leaked into store")
	}

	m.RemoveActivePlan("plan-1")
	if got := m.ActivePlans(); len(got) != 0 {
		t.Fatalf("plans after remove = %d, want 0", len(got))
	}
}

func TestPatternSpace(t *testing.T) {
	m := NewMemory(Options{})
	if err := m.StorePattern(models.ActionPattern{}); err == nil {
		t.Fatal("expected error for pattern without id")
	}

	p1 := models.ActionPattern{
		ID: "overload:scale_up", EventType: models.EventTypeOverload,
		Action: models.ActionScaleUp, Occurrences: 12, Successes: 10,
		SuccessRate: 10.0 / 12.0, AvgConfidence: 0.8,
	}
	p2 := models.ActionPattern{
		ID: "crash:restart_pod", EventType: models.EventTypeCrash,
		Action: models.ActionRestartPod, Occurrences: 4, Successes: 4,
		SuccessRate: 1.0, AvgConfidence: 0.9,
	}
	for _, p := range []models.ActionPattern{p1, p2} {
		if err := m.StorePattern(p); err != nil {
			t.Fatalf("store pattern %s: %v", p.ID, err)
		}
	}

	got, ok := m.Pattern("overload:scale_up")
	if !ok || got.Occurrences != 12 {
		t.Fatalf("pattern lookup = %+v ok=%v", got, ok)
	}

	all := m.Patterns()
	if len(all) != 2 || all[0].ID != "crash:restart_pod" {
		t.Fatalf("patterns order = %v", patternIDs(all))
	}

	matches := m.RetrieveSimilarPatterns(p1, 2)
	if len(matches) != 2 || matches[0].Pattern.ID != p1.ID {
		t.Fatalf("similar patterns = %v", matches)
	}
	if matches[0].Similarity < 0.99 {
		t.Fatalf("self pattern similarity = %f, want ~1", matches[0].Similarity)
	}
}

func patternIDs(patterns []models.ActionPattern) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = p.ID
	}
	return out
}

func TestStatisticsCountsAllStores(t *testing.T) {
	m := NewMemory(Options{})
	m.StoreEvent(models.Event{ID: "e1", Type: "latency_spike"})
	if _, err := m.StoreDecision(models.Decision{Action: models.ActionDoNothing}, nil); err != nil {
		t.Fatalf("store decision: %v", err)
	}
	if err := m.StorePattern(models.ActionPattern{ID: "anomaly:do_nothing", Action: models.ActionDoNothing}); err != nil {
		t.Fatalf("store pattern: %v", err)
	}
	m.AddActivePlan("p1", models.RecoveryPlan{Action: models.ActionDoNothing})

	stats, err := m.Statistics()
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	want := Stats{
		ShortTerm:  ShortTermStats{Events: 1, Decisions: 1, ActivePlans: 1},
		LongTerm:   LongTermStats{ArchivedDecisions: 1, Patterns: 1},
		Embeddings: EmbeddingStats{DecisionEmbeddings: 1, PatternEmbeddings: 1},
	}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}
