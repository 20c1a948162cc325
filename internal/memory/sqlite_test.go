package memory

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aegismesh/aegis-meta/internal/models"
)

func openTestArchive(t *testing.T, maxSize int) *SQLiteArchive {
	t.Helper()
	a, err := NewSQLiteArchive(filepath.Join(t.TempDir(), "archive.db"), maxSize)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSQLiteArchiveRoundTrip(t *testing.T) {
	a := openTestArchive(t, 0)
	ts := time.Date(2025, 6, 1, 12, 30, 45, 500000000, time.UTC)
	entry := models.ArchiveEntry{
		DecisionID: "dec-1",
		Timestamp:  ts,
		Decision: models.Decision{
			ID: "dec-1", Action: models.ActionScaleUp, Confidence: 0.82,
			Params: map[string]any{"target_replicas": 5.0},
			Recommendations: []models.Recommendation{
				{Action: models.ActionScaleUp, Confidence: 0.82, Source: "gnn"},
			},
			SafetyChecked: true, IsSafe: true,
		},
		Context: map[string]any{"event_type": "overload", "cpu_usage": 91.5},
	}
	if err := a.Put(entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := a.Get("dec-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Decision.Action != models.ActionScaleUp || got.Decision.Confidence != 0.82 {
		t.Fatalf("decision round trip = %+v", got.Decision)
	}
	if len(got.Decision.Recommendations) != 1 || got.Decision.Recommendations[0].Source != "gnn" {
		t.Fatalf("recommendations lost: %+v", got.Decision.Recommendations)
	}
	if got.Context["event_type"] != "overload" {
		t.Fatalf("context round trip = %v", got.Context)
	}
	if got.Success != nil || got.Outcome != nil {
		t.Fatalf("fresh entry should have no outcome, got %+v", got)
	}
	if d := got.Timestamp.Sub(ts); d < -time.Millisecond || d > time.Millisecond {
		t.Fatalf("timestamp drifted by %v", d)
	}

	if _, ok, err := a.Get("absent"); err != nil || ok {
		t.Fatalf("absent get: ok=%v err=%v", ok, err)
	}
}

func TestSQLiteArchiveSetOutcome(t *testing.T) {
	a := openTestArchive(t, 0)
	if err := a.Put(testEntry("dec-1", models.ActionRestartPod, time.Now().UTC())); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := a.SetOutcome("dec-1", map[string]any{"resolution": "restarted"}, true); err != nil {
		t.Fatalf("set outcome: %v", err)
	}
	got, _, _ := a.Get("dec-1")
	if got.Success == nil || !*got.Success {
		t.Fatalf("success = %v, want true", got.Success)
	}
	if got.Outcome["resolution"] != "restarted" {
		t.Fatalf("outcome = %v", got.Outcome)
	}

	if err := a.SetOutcome("absent", nil, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("absent outcome error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteArchiveSearch(t *testing.T) {
	a := openTestArchive(t, 0)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := a.Put(testEntry("d1", models.ActionRestartPod, base)); err != nil {
		t.Fatalf("put: %v", err)
	}
	e2 := testEntry("d2", models.ActionScaleUp, base.Add(time.Minute))
	if err := a.Put(e2); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := a.Put(testEntry("d3", models.ActionScaleUp, base.Add(2*time.Minute))); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := a.SetOutcome("d2", nil, true); err != nil {
		t.Fatalf("set outcome: %v", err)
	}

	got, err := a.Search(models.ArchiveFilter{Action: models.ActionScaleUp})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 2 || got[0].DecisionID != "d3" || got[1].DecisionID != "d2" {
		t.Fatalf("action search = %v, want [d3 d2]", ids(got))
	}

	yes := true
	got, _ = a.Search(models.ArchiveFilter{Success: &yes})
	if len(got) != 1 || got[0].DecisionID != "d2" {
		t.Fatalf("success search = %v, want [d2]", ids(got))
	}

	got, _ = a.Search(models.ArchiveFilter{Start: base.Add(30 * time.Second), End: base.Add(90 * time.Second)})
	if len(got) != 1 || got[0].DecisionID != "d2" {
		t.Fatalf("range search = %v, want [d2]", ids(got))
	}

	got, _ = a.Search(models.ArchiveFilter{Limit: 1})
	if len(got) != 1 || got[0].DecisionID != "d3" {
		t.Fatalf("limited search = %v, want [d3]", ids(got))
	}
}

func TestSQLiteArchiveEvictsOldest(t *testing.T) {
	a := openTestArchive(t, 3)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		if err := a.Put(testEntry(id, models.ActionRestartPod, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	n, err := a.Len()
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 3 {
		t.Fatalf("len = %d, want 3", n)
	}
	for _, id := range []string{"d1", "d2"} {
		if _, ok, _ := a.Get(id); ok {
			t.Fatalf("%s should have been evicted", id)
		}
	}
}

func TestSQLiteArchiveUpsert(t *testing.T) {
	a := openTestArchive(t, 0)
	ts := time.Now().UTC()
	if err := a.Put(testEntry("dec-1", models.ActionRestartPod, ts)); err != nil {
		t.Fatalf("put: %v", err)
	}
	updated := testEntry("dec-1", models.ActionRollbackDeployment, ts.Add(time.Second))
	if err := a.Put(updated); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	n, _ := a.Len()
	if n != 1 {
		t.Fatalf("len = %d, want 1 after upsert", n)
	}
	got, _, _ := a.Get("dec-1")
	if got.Decision.Action != models.ActionRollbackDeployment {
		t.Fatalf("action = %q, want rollback_deployment", got.Decision.Action)
	}
}

func TestSQLiteArchiveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.db")
	a, err := NewSQLiteArchive(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := a.Put(testEntry("dec-1", models.ActionTriggerHeal, time.Now().UTC())); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := NewSQLiteArchive(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b.Close()
	if _, ok, err := b.Get("dec-1"); err != nil || !ok {
		t.Fatalf("entry lost across reopen: ok=%v err=%v", ok, err)
	}
}
