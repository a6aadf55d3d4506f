// Package embed provides the semantic fallback tier: a corpus of
// (text, coordinate) pairs with precomputed embedding vectors, searched by
// cosine similarity against an encoded query.
package embed

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Encoder turns text into an embedding vector. Implementations wrap an
// external model; encoding is CPU-bound, so implementations may offload to a
// worker of their own.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Entry is one corpus item with its precomputed vector.
type Entry struct {
	Text   string    `json:"text"`
	City   string    `json:"city"`
	State  string    `json:"state"`
	Lat    float64   `json:"lat"`
	Lon    float64   `json:"lon"`
	Vector []float32 `json:"vector"`
}

// Match is a corpus entry scored against a query.
type Match struct {
	Entry
	Similarity float64
}

// Index is the immutable embedding corpus plus the query encoder. A nil
// Index, or one missing either half, reports unavailable and the tier is
// skipped rather than attempted.
type Index struct {
	entries []Entry
	encoder Encoder
	dim     int
}

// NewIndex builds an index over entries. Vectors are L2-normalized once here
// so Search reduces to a dot product. Entries whose vector length disagrees
// with the first entry are dropped.
func NewIndex(entries []Entry, enc Encoder) *Index {
	ix := &Index{encoder: enc}
	for _, e := range entries {
		if len(e.Vector) == 0 {
			continue
		}
		if ix.dim == 0 {
			ix.dim = len(e.Vector)
		}
		if len(e.Vector) != ix.dim {
			continue
		}
		e.Vector = normalize(e.Vector)
		ix.entries = append(ix.entries, e)
	}
	return ix
}

// LoadIndex reads a JSON corpus file and builds an index over it.
func LoadIndex(path string, enc Encoder) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "embed: read corpus %s", path)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrapf(err, "embed: parse corpus %s", path)
	}
	ix := NewIndex(entries, enc)
	zap.L().Info("embed: loaded corpus", zap.String("path", path), zap.Int("entries", len(ix.entries)))
	return ix, nil
}

// Load resolves the index from the configured corpus path. Missing corpus or
// encoder degrades the embedding tier to unavailable, never an error. A
// corpus configured without an encoder is a wiring gap worth surfacing: the
// operator set the knob but the tier cannot run.
func Load(path string, enc Encoder) *Index {
	if path == "" {
		return NewIndex(nil, enc)
	}
	if enc == nil {
		zap.L().Warn("embed: corpus configured but no query encoder is wired, embedding tier disabled",
			zap.String("corpus", path))
		return NewIndex(nil, nil)
	}
	ix, err := LoadIndex(path, enc)
	if err != nil {
		zap.L().Warn("embed: corpus unavailable, embedding tier disabled", zap.Error(err))
		return NewIndex(nil, enc)
	}
	return ix
}

// Available is the capability flag for the embedding tier.
func (ix *Index) Available() bool {
	return ix != nil && ix.encoder != nil && len(ix.entries) > 0
}

// Search encodes the query and returns the topK nearest corpus entries by
// cosine similarity, best first. Ties break on corpus order, which is fixed.
func (ix *Index) Search(ctx context.Context, text string, topK int) ([]Match, error) {
	if !ix.Available() || text == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	vec, err := ix.encoder.Encode(ctx, text)
	if err != nil {
		return nil, eris.Wrap(err, "embed: encode query")
	}
	if len(vec) != ix.dim {
		return nil, eris.Errorf("embed: query vector dim %d, corpus dim %d", len(vec), ix.dim)
	}
	q := normalize(vec)

	matches := make([]Match, 0, len(ix.entries))
	for _, e := range ix.entries {
		matches = append(matches, Match{Entry: e, Similarity: dot(q, e.Vector)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
