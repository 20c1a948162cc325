package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

type recommendRequest struct {
	Event struct {
		ID       string         `json:"id"`
		Type     string         `json:"type"`
		Severity string         `json:"severity"`
		Payload  map[string]any `json:"payload"`
	} `json:"event"`
	SystemState struct {
		CPUUsage    float64 `json:"cpu_usage"`
		MemoryUsage float64 `json:"memory_usage"`
		ErrorRate   float64 `json:"error_rate"`
	} `json:"system_state"`
}

type recommendation struct {
	Action     string         `json:"action"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Params     map[string]any `json:"params,omitempty"`
}

// advise returns a canned recommendation per persona. Personas disagree on
// purpose so tie-breaks and safety corrections are visible in local runs.
func advise(persona string, req recommendRequest) recommendation {
	eventType := strings.ToLower(req.Event.Type)

	switch {
	case strings.Contains(eventType, "crash"):
		switch persona {
		case "gnn":
			return recommendation{Action: "restart_pod", Confidence: 0.82, Reasoning: "crash loop isolated to one pod in the dependency graph"}
		case "rl":
			return recommendation{Action: "restart_pod", Confidence: 0.88, Reasoning: "restart resolved similar crashes in past episodes"}
		case "transformer":
			return recommendation{Action: "replace_pod", Confidence: 0.74, Reasoning: "log sequence matches corrupted-state signature"}
		default:
			return recommendation{Action: "rebuild_deployment", Confidence: 0.61, Reasoning: "stack trace suggests a bad image layer"}
		}
	case strings.Contains(eventType, "memory"), strings.Contains(eventType, "cpu"), strings.Contains(eventType, "load"):
		params := map[string]any{"target_replicas": 6}
		if persona == "llm" {
			// Deliberately over the policy ceiling to exercise clamping.
			params = map[string]any{"target_replicas": 50}
		}
		return recommendation{
			Action:     "scale_up",
			Confidence: 0.7 + 0.02*float64(len(persona)%4),
			Reasoning:  "sustained resource pressure on the target service",
			Params:     params,
		}
	case strings.Contains(eventType, "error"), strings.Contains(eventType, "deploy"):
		return recommendation{Action: "rollback_deployment", Confidence: 0.77, Reasoning: "error rate climbed right after the last rollout"}
	case strings.Contains(eventType, "attack"), strings.Contains(eventType, "security"):
		return recommendation{Action: "trigger_heal", Confidence: 0.69, Reasoning: "traffic pattern matches a known abuse signature"}
	default:
		return recommendation{Action: "do_nothing", Confidence: 0.35, Reasoning: "no confident match for this event type"}
	}
}

func personaHandler(persona string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req recommendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, advise(persona, req))
	}
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	for _, persona := range []string{"gnn", "rl", "transformer", "llm"} {
		mux.HandleFunc("/"+persona+"/recommend", personaHandler(persona))
		mux.HandleFunc("/"+persona+"/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
	}

	logger := log.New(log.Writer(), "advisor-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8081",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8081")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
