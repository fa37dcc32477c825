// Package policy provides retrieval over the company handbook. Chunks are
// embedded once and ranked by cosine similarity against the query; when no
// embedder is available the index degrades to keyword scoring so policy
// answers still work offline.
package policy

import (
	"context"
	_ "embed"
	"math"
	"sort"
	"strings"
	"sync"
)

//go:embed handbook.md
var handbook string

// matchThreshold filters out chunks with weak similarity to the query.
const matchThreshold = 0.4

// Embedder converts text into a vector.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// Chunk is one retrievable section of the handbook.
type Chunk struct {
	Title string
	Text  string

	vec []float64
}

// DefaultChunks parses the embedded handbook into per-section chunks.
func DefaultChunks() []*Chunk {
	var out []*Chunk
	for _, section := range strings.Split(handbook, "\n## ") {
		section = strings.TrimSpace(section)
		if section == "" || strings.HasPrefix(section, "# ") {
			continue
		}
		title, text, found := strings.Cut(section, "\n")
		if !found {
			continue
		}
		out = append(out, &Chunk{Title: strings.TrimSpace(title), Text: strings.TrimSpace(text)})
	}
	return out
}

// Index ranks handbook chunks against queries.
type Index struct {
	embedder Embedder

	mu     sync.Mutex
	chunks []*Chunk
	warmed bool
}

// NewIndex builds an index over the given chunks. embedder may be nil, in
// which case searches use keyword scoring only.
func NewIndex(chunks []*Chunk, embedder Embedder) *Index {
	return &Index{chunks: chunks, embedder: embedder}
}

// Search returns up to k chunks relevant to the query, best first. Embedding
// failures fall back to keyword scoring rather than erroring; a chat turn
// should never fail because retrieval did.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]*Chunk, error) {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return nil, nil
	}
	if ix.embedder != nil {
		if hits, err := ix.vectorSearch(ctx, query, k); err == nil {
			return hits, nil
		}
	}
	return ix.keywordSearch(query, k), nil
}

func (ix *Index) vectorSearch(ctx context.Context, query string, k int) ([]*Chunk, error) {
	if err := ix.warm(ctx); err != nil {
		return nil, err
	}
	qv, err := ix.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, err
	}

	type scored struct {
		chunk *Chunk
		score float64
	}
	var ranked []scored
	ix.mu.Lock()
	for _, c := range ix.chunks {
		if len(c.vec) == 0 {
			continue
		}
		if s := cosine(qv, c.vec); s >= matchThreshold {
			ranked = append(ranked, scored{chunk: c, score: s})
		}
	}
	ix.mu.Unlock()

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]*Chunk, len(ranked))
	for i, s := range ranked {
		out[i] = s.chunk
	}
	return out, nil
}

// warm embeds every chunk once, lazily on first vector search.
func (ix *Index) warm(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.warmed {
		return nil
	}
	for _, c := range ix.chunks {
		vec, err := ix.embedder.EmbedText(ctx, c.Title+"\n"+c.Text)
		if err != nil {
			return err
		}
		c.vec = vec
	}
	ix.warmed = true
	return nil
}

func (ix *Index) keywordSearch(query string, k int) []*Chunk {
	terms := tokens(query)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		chunk *Chunk
		score int
	}
	var ranked []scored
	ix.mu.Lock()
	for _, c := range ix.chunks {
		body := strings.ToLower(c.Title + " " + c.Text)
		score := 0
		for term := range terms {
			if strings.Contains(body, term) {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{chunk: c, score: score})
		}
	}
	ix.mu.Unlock()

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]*Chunk, len(ranked))
	for i, s := range ranked {
		out[i] = s.chunk
	}
	return out
}

// tokens splits a query into lowercase terms, dropping short stop-ish words.
func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?\"'()")
		if len(w) < 4 {
			continue
		}
		out[w] = true
	}
	return out
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
