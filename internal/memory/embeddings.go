package memory

import (
	"math"
	"sort"
	"sync"
)

// DefaultEmbeddingDim is the width every stored vector is padded or
// truncated to before indexing.
const DefaultEmbeddingDim = 128

// Neighbor is one result of a similarity lookup.
type Neighbor struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// EmbeddingIndex holds fixed-width embeddings for decisions and patterns in
// separate namespaces and answers cosine-similarity lookups. Results are
// ordered by similarity descending; equal scores keep insertion order.
type EmbeddingIndex struct {
	dim int

	mu          sync.RWMutex
	decisionIDs []string
	decisions   map[string][]float64
	patternIDs  []string
	patterns    map[string][]float64
}

// NewEmbeddingIndex creates an index of the given dimension. Dimensions below
// 1 fall back to DefaultEmbeddingDim.
func NewEmbeddingIndex(dim int) *EmbeddingIndex {
	if dim < 1 {
		dim = DefaultEmbeddingDim
	}
	return &EmbeddingIndex{
		dim:       dim,
		decisions: make(map[string][]float64),
		patterns:  make(map[string][]float64),
	}
}

// Dim returns the fixed vector width.
func (x *EmbeddingIndex) Dim() int { return x.dim }

// StoreDecisionEmbedding indexes the vector under the decision id, padding or
// truncating it to the index dimension. Storing an existing id replaces the
// vector without changing its position in the insertion order.
func (x *EmbeddingIndex) StoreDecisionEmbedding(id string, vec []float64) {
	if id == "" {
		return
	}
	fitted := x.fit(vec)
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.decisions[id]; !ok {
		x.decisionIDs = append(x.decisionIDs, id)
	}
	x.decisions[id] = fitted
}

// StorePatternEmbedding indexes the vector under the pattern id in the
// pattern namespace.
func (x *EmbeddingIndex) StorePatternEmbedding(id string, vec []float64) {
	if id == "" {
		return
	}
	fitted := x.fit(vec)
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.patterns[id]; !ok {
		x.patternIDs = append(x.patternIDs, id)
	}
	x.patterns[id] = fitted
}

// FindSimilarDecisions returns up to k decision ids ranked by cosine
// similarity to the query.
func (x *EmbeddingIndex) FindSimilarDecisions(query []float64, k int) []Neighbor {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.search(query, k, x.decisionIDs, x.decisions)
}

// FindSimilarPatterns returns up to k pattern ids ranked by cosine similarity
// to the query.
func (x *EmbeddingIndex) FindSimilarPatterns(query []float64, k int) []Neighbor {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.search(query, k, x.patternIDs, x.patterns)
}

// Counts reports how many decision and pattern vectors are indexed.
func (x *EmbeddingIndex) Counts() (decisions, patterns int) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.decisionIDs), len(x.patternIDs)
}

func (x *EmbeddingIndex) search(query []float64, k int, ids []string, vecs map[string][]float64) []Neighbor {
	if k <= 0 || len(ids) == 0 {
		return nil
	}
	q := x.fit(query)
	out := make([]Neighbor, 0, len(ids))
	for _, id := range ids {
		out = append(out, Neighbor{ID: id, Similarity: cosine(q, vecs[id])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// fit copies vec into a slice of exactly dim elements, zero-padding short
// input and truncating long input.
func (x *EmbeddingIndex) fit(vec []float64) []float64 {
	out := make([]float64, x.dim)
	copy(out, vec)
	return out
}

// cosine computes cosine similarity between equal-length vectors. The small
// epsilon keeps zero vectors from dividing by zero; they score near 0.
func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	return dot / (math.Sqrt(na)*math.Sqrt(nb) + 1e-8)
}
