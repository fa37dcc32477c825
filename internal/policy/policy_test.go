package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultChunks(t *testing.T) {
	chunks := DefaultChunks()
	require.NotEmpty(t, chunks)

	titles := make([]string, len(chunks))
	for i, c := range chunks {
		require.NotEmpty(t, c.Title)
		require.NotEmpty(t, c.Text)
		titles[i] = c.Title
	}
	assert.Contains(t, titles, "Annual leave")
	assert.Contains(t, titles, "Expense claims")
}

func TestSearch_KeywordFallback(t *testing.T) {
	ix := NewIndex(DefaultChunks(), nil)

	hits, err := ix.Search(context.Background(), "how many annual leave days do I get?", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Annual leave", hits[0].Title)

	hits, err = ix.Search(context.Background(), "what is the meal claim limit?", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Expense claims", hits[0].Title)
}

func TestSearch_EmptyQuery(t *testing.T) {
	ix := NewIndex(DefaultChunks(), nil)
	hits, err := ix.Search(context.Background(), "   ", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// stubEmbedder returns a fixed axis vector per known topic so similarity is
// exact: matching topics score 1, everything else 0.
type stubEmbedder struct{ calls int }

func (s *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	s.calls++
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "annual"):
		return []float64{1, 0, 0}, nil
	case strings.Contains(lower, "medical"):
		return []float64{0, 1, 0}, nil
	default:
		return []float64{0, 0, 1}, nil
	}
}

func TestSearch_VectorRanking(t *testing.T) {
	chunks := []*Chunk{
		{Title: "Annual leave", Text: "14 days per year"},
		{Title: "Medical leave", Text: "10 days per year"},
	}
	emb := &stubEmbedder{}
	ix := NewIndex(chunks, emb)

	hits, err := ix.Search(context.Background(), "annual leave entitlement", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1, "orthogonal chunks fall below the match threshold")
	assert.Equal(t, "Annual leave", hits[0].Title)

	// Chunks are embedded once; later searches only embed the query.
	warmCalls := emb.calls
	_, err = ix.Search(context.Background(), "medical leave entitlement", 3)
	require.NoError(t, err)
	assert.Equal(t, warmCalls+1, emb.calls)
}

func TestSearch_EmbedderFailureFallsBack(t *testing.T) {
	ix := NewIndex(DefaultChunks(), failingEmbedder{})

	hits, err := ix.Search(context.Background(), "annual leave days", 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Annual leave", hits[0].Title)
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	return nil, context.DeadlineExceeded
}
