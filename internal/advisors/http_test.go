package advisors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aegismesh/aegis-meta/internal/models"
)

func TestRecommendSuccess(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req recommendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Event.ID != "evt-1" || req.SystemState.CPUUsage != 92.0 {
			t.Errorf("unexpected request payload: %+v", req)
		}
		json.NewEncoder(w).Encode(recommendResponse{
			Action:     "scale_up",
			Confidence: 0.87,
			Reasoning:  "cpu saturation across replicas",
			Params:     map[string]any{"target_replicas": 6.0},
		})
	}))
	defer server.Close()

	advisor := NewHTTPAdvisor("gnn", server.URL, "", "", 2*time.Second)
	rec, err := advisor.Recommend(context.Background(),
		models.Event{ID: "evt-1", Type: "cpu_spike"},
		models.SystemState{CPUUsage: 92.0})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if gotPath != "/recommend" {
		t.Fatalf("path = %q, want /recommend", gotPath)
	}
	if rec.Action != models.ActionScaleUp || rec.Confidence != 0.87 {
		t.Fatalf("recommendation = %+v", rec)
	}
	if rec.Source != "gnn" {
		t.Fatalf("source = %q, want gnn", rec.Source)
	}
	if rec.Params["target_replicas"] != 6.0 {
		t.Fatalf("params = %v", rec.Params)
	}
}

func TestRecommendClampsConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(recommendResponse{Action: "do_nothing", Confidence: 1.7})
	}))
	defer server.Close()

	advisor := NewHTTPAdvisor("llm", server.URL, "", "", 2*time.Second)
	rec, err := advisor.Recommend(context.Background(), models.Event{}, models.SystemState{})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.Confidence != 1.0 {
		t.Fatalf("confidence = %f, want clamped to 1.0", rec.Confidence)
	}
}

func TestRecommendErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	advisor := NewHTTPAdvisor("rl", server.URL, "", "", 2*time.Second)
	if _, err := advisor.Recommend(context.Background(), models.Event{}, models.SystemState{}); err == nil {
		t.Fatal("expected error for 503 response")
	} else if !strings.Contains(err.Error(), "advisor rl") {
		t.Fatalf("error should name the advisor: %v", err)
	}
}

func TestRecommendMissingAction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(recommendResponse{Confidence: 0.9})
	}))
	defer server.Close()

	advisor := NewHTTPAdvisor("transformer", server.URL, "", "", 2*time.Second)
	if _, err := advisor.Recommend(context.Background(), models.Event{}, models.SystemState{}); err == nil {
		t.Fatal("expected error for response without action")
	}
}

func TestRecommendHonorsContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	advisor := NewHTTPAdvisor("gnn", server.URL, "", "", 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := advisor.Recommend(ctx, models.Event{}, models.SystemState{})
	if err == nil {
		t.Fatal("expected deadline error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("call did not respect context deadline, took %v", elapsed)
	}
}

func TestRecommendUnconfiguredBaseURL(t *testing.T) {
	advisor := NewHTTPAdvisor("gnn", "", "", "", time.Second)
	if _, err := advisor.Recommend(context.Background(), models.Event{}, models.SystemState{}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
}

func TestHealthy(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		if !healthy {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	advisor := NewHTTPAdvisor("gnn", server.URL, "", "", 2*time.Second)
	if err := advisor.Healthy(context.Background()); err != nil {
		t.Fatalf("healthy probe failed: %v", err)
	}
	healthy = false
	if err := advisor.Healthy(context.Background()); err == nil {
		t.Fatal("expected error from unhealthy probe")
	}
}
