package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gonum.org/v1/gonum/floats"
)

// Embedder maps texts to vectors. Implementations must be deterministic for
// BuildContext to be.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// HashingEmbedder is a feature-hashing bag-of-words embedder: each lowercased
// word is hashed into one of Dims buckets with a hash-derived sign. Vectors are
// L2-normalized.
type HashingEmbedder struct {
	Dims int
}

// NewHashingEmbedder creates a HashingEmbedder (256 dimensions when dims <= 0).
func NewHashingEmbedder(dims int) HashingEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return HashingEmbedder{Dims: dims}
}

// Embed implements Embedder.
func (h HashingEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	dims := h.Dims
	if dims <= 0 {
		dims = 256
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v := make([]float64, dims)
		for _, word := range tokenize(text) {
			hf := fnv.New32a()
			_, _ = hf.Write([]byte(word))
			sum := hf.Sum32()
			sign := 1.0
			if sum&(1<<31) != 0 {
				sign = -1.0
			}
			v[int(sum%uint32(dims))] += sign
		}
		if n := floats.Norm(v, 2); n > 0 {
			floats.Scale(1/n, v)
		}
		out[i] = v
	}
	return out, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// CachedEmbedder memoizes another Embedder per text.
type CachedEmbedder struct {
	next  Embedder
	mu    sync.RWMutex
	cache map[string][]float64
}

// NewCachedEmbedder wraps next with a per-text cache.
func NewCachedEmbedder(next Embedder) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: map[string][]float64{}}
}

// Embed implements Embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.RLock()
	for i, t := range texts {
		if v, ok := c.cache[t]; ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}

	c.mu.Lock()
	for j, v := range vecs {
		c.cache[missing[j]] = v
		out[missingIdx[j]] = v
	}
	c.mu.Unlock()
	return out, nil
}

// Cosine returns the cosine similarity of a and b (0 for mismatched or zero
// vectors).
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// Semantic keeps the older groups most similar to the latest user message.
type Semantic struct {
	Embedder Embedder
	// Threshold is the minimum cosine similarity for a group to be considered.
	Threshold float64
	// MaxGroups caps how many groups are selected (zero means no cap).
	MaxGroups int
}

// Name implements Strategy.
func (s Semantic) Name() string { return "semantic" }

// Select implements Strategy.
func (s Semantic) Select(ctx context.Context, req Request) (Selection, error) {
	if strings.TrimSpace(req.Query) == "" || len(req.Candidates) == 0 {
		return Selection{Keep: newestFit(req.Candidates, req.Budget, 0, req.ReservedMessages)}, nil
	}
	ranked, err := s.rank(ctx, req.Query, req.Candidates)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Keep: fillRanked(ranked, req.Candidates, req.Budget, s.MaxGroups)}, nil
}

type scored struct {
	pos   int
	score float64
}

// rank scores candidates against query and returns those above the
// threshold, best first; ties prefer newer groups.
func (s Semantic) rank(ctx context.Context, query string, cands []Group) ([]scored, error) {
	emb := s.Embedder
	if emb == nil {
		emb = NewHashingEmbedder(0)
	}
	texts := make([]string, 0, len(cands)+1)
	texts = append(texts, query)
	for _, g := range cands {
		texts = append(texts, g.Text())
	}
	vecs, err := emb.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}

	ranked := make([]scored, 0, len(cands))
	for i := range cands {
		score := Cosine(vecs[0], vecs[i+1])
		if score >= s.Threshold && score > 0 {
			ranked = append(ranked, scored{pos: i, score: score})
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		return ranked[a].pos > ranked[b].pos
	})
	return ranked, nil
}

func fillRanked(ranked []scored, cands []Group, budget, maxGroups int) []int {
	var keep []int
	used := 0
	for _, r := range ranked {
		if maxGroups > 0 && len(keep) >= maxGroups {
			break
		}
		t := cands[r.pos].Tokens
		if used+t > budget {
			continue
		}
		used += t
		keep = append(keep, r.pos)
	}
	return keep
}
