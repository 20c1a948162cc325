package features

import "github.com/aegismesh/aegis-meta/internal/models"

// Payload values arrive from JSON or hand-built maps, so numbers show up as
// float64, int, or int64 depending on the producer.

// StateFromPayload reads the system_state block an event payload carries.
// Events without one yield the zero state.
func StateFromPayload(payload map[string]any) models.SystemState {
	sub, _ := payload["system_state"].(map[string]any)
	if sub == nil {
		return models.SystemState{}
	}
	return models.SystemState{
		CPUUsage:         floatField(sub, "cpu_usage"),
		MemoryUsage:      floatField(sub, "memory_usage"),
		ErrorRate:        floatField(sub, "error_rate"),
		NetworkLatency:   floatField(sub, "network_latency"),
		Replicas:         intField(sub, "replicas"),
		DependencyHealth: floatField(sub, "dependency_health"),
	}
}

func floatField(m map[string]any, key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func intField(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func floatMapField(m map[string]any, key string) map[string]float64 {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case map[string]float64:
		return v
	case map[string]any:
		out := make(map[string]float64, len(v))
		for k := range v {
			out[k] = floatField(v, k)
		}
		return out
	}
	return nil
}

func floatSliceField(m map[string]any, key string) []float64 {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			}
		}
		return out
	}
	return nil
}
