package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/raaf/core"
)

var _ core.MemoryStore = (*InMemoryStore)(nil)

// StoredMemory is the internal representation persisted by InMemoryStore.
type StoredMemory struct {
	ID       string
	Content  string
	Metadata map[string]any
	vector   []float64
}

// InMemoryStore is a process-local MemoryStore. It offers:
//  1. Session scoped key/value memory (Get / Put)
//  2. Append-only stored memories with Search
//
// Without an Embedder, Search is a case-insensitive substring match scoring
// every hit 1.0. With one, Search ranks by cosine similarity to the query.
type InMemoryStore struct {
	mu       sync.RWMutex
	embedder Embedder
	memory   map[string]map[string]any // sessionID -> key -> value
	storage  map[string][]StoredMemory // sessionID -> memories in insertion order
	seq      map[string]int            // sessionID -> last issued id
}

// NewInMemoryStore creates a new in-memory memory store.
func NewInMemoryStore(optFns ...func(s *InMemoryStore)) *InMemoryStore {
	s := &InMemoryStore{
		memory:  make(map[string]map[string]any),
		storage: make(map[string][]StoredMemory),
		seq:     make(map[string]int),
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// WithEmbedder enables similarity search.
func WithEmbedder(e Embedder) func(s *InMemoryStore) {
	return func(s *InMemoryStore) { s.embedder = e }
}

// Get returns a copy of the key/value memory map for the session.
func (m *InMemoryStore) Get(sessionID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessionMemory := m.memory[sessionID]
	result := make(map[string]any, len(sessionMemory))
	for k, v := range sessionMemory {
		result[k] = v
	}
	return result, nil
}

// Put merges the provided delta map into the session's key/value memory.
func (m *InMemoryStore) Put(sessionID string, delta map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.memory[sessionID]; !exists {
		m.memory[sessionID] = make(map[string]any)
	}
	for k, v := range delta {
		m.memory[sessionID][k] = v
	}
	return nil
}

// Search returns up to limit memories matching query, best first. An empty
// query returns the newest memories.
func (m *InMemoryStore) Search(ctx context.Context, sessionID, query string, limit int) ([]core.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	var qvec []float64
	if m.embedder != nil && query != "" {
		vecs, err := m.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		qvec = vecs[0]
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.storage[sessionID]
	results := make([]core.SearchResult, 0, len(stored))
	lq := strings.ToLower(query)
	for i := len(stored) - 1; i >= 0; i-- {
		sm := stored[i]
		score := 1.0
		switch {
		case query == "":
		case qvec != nil && sm.vector != nil:
			score = Cosine(qvec, sm.vector)
			if score <= 0 {
				continue
			}
		case !strings.Contains(strings.ToLower(sm.Content), lq):
			continue
		}
		results = append(results, core.SearchResult{ID: sm.ID, Content: sm.Content, Score: score, Metadata: copyMap(sm.Metadata)})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Store appends a new memory and returns its id.
func (m *InMemoryStore) Store(ctx context.Context, sessionID, content string, metadata map[string]any) (string, error) {
	var vec []float64
	if m.embedder != nil {
		vecs, err := m.embedder.Embed(ctx, []string{content})
		if err != nil {
			return "", fmt.Errorf("embed memory: %w", err)
		}
		vec = vecs[0]
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[sessionID]++
	memoryID := fmt.Sprintf("mem_%d", m.seq[sessionID])
	m.storage[sessionID] = append(m.storage[sessionID], StoredMemory{
		ID:       memoryID,
		Content:  content,
		Metadata: copyMap(metadata),
		vector:   vec,
	})
	return memoryID, nil
}

// Delete removes a stored memory entry by id.
func (m *InMemoryStore) Delete(sessionID, memoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.storage[sessionID]
	for i, sm := range stored {
		if sm.ID == memoryID {
			m.storage[sessionID] = append(stored[:i:i], stored[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("memory %s not found", memoryID)
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
