package features

import (
	"hash/fnv"

	"github.com/aegismesh/aegis-meta/internal/models"
)

// DefaultEmbeddingDim is the fixed embedding dimension used for similarity
// lookups.
const DefaultEmbeddingDim = 128

// baseFeatureCount is the number of real features derived from a decision
// before expansion to the embedding dimension.
const baseFeatureCount = 5

// Extractor derives fixed-dimension feature embeddings from decisions and the
// context they were made in.
type Extractor struct {
	dim int
}

// NewExtractor creates an extractor producing embeddings of the given
// dimension. Dimensions below the base feature count fall back to the default.
func NewExtractor(dim int) *Extractor {
	if dim < baseFeatureCount {
		dim = DefaultEmbeddingDim
	}
	return &Extractor{dim: dim}
}

// Dim returns the embedding dimension.
func (e *Extractor) Dim() int { return e.dim }

// DecisionEmbedding derives the embedding for a decision plus context. The
// five base features are the encoded action, the decision confidence, and the
// cpu/memory/error-rate figures scaled into [0,1]; the remainder of the vector
// is a deterministic decayed tiling of those features so identical inputs
// always produce identical embeddings.
func (e *Extractor) DecisionEmbedding(decision models.Decision, context map[string]any) []float64 {
	base := []float64{
		actionFeature(decision.Action),
		decision.Confidence,
		floatField(context, "cpu_usage") / 100.0,
		floatField(context, "memory_usage") / 100.0,
		floatField(context, "error_rate") / 100.0,
	}
	return e.expand(base)
}

// PatternEmbedding derives the embedding for a mined action pattern. The base
// features are the encoded event type and action, the success rate, the
// average confidence, and the occurrence count squashed into [0,1).
func (e *Extractor) PatternEmbedding(pattern models.ActionPattern) []float64 {
	base := []float64{
		hashFeature(string(pattern.EventType)),
		actionFeature(pattern.Action),
		pattern.SuccessRate,
		pattern.AvgConfidence,
		1.0 - 1.0/float64(1+pattern.Occurrences),
	}
	return e.expand(base)
}

func (e *Extractor) expand(base []float64) []float64 {
	out := make([]float64, e.dim)
	copy(out, base)

	scale := 1.0
	for i := len(base); i < e.dim; i++ {
		if (i-len(base))%len(base) == 0 {
			scale *= 0.5
		}
		out[i] = base[i%len(base)] * scale
	}
	return out
}

// actionFeature encodes an action name into [0,1) with a stable hash.
func actionFeature(action models.Action) float64 {
	if action == "" {
		action = "no_action"
	}
	return hashFeature(string(action))
}

func hashFeature(s string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum32()%1000) / 1000.0
}
