package rag_test

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	long := strings.Repeat("a", 250)
	got := rag.Preview(long)
	assert.Equal(t, strings.Repeat("a", 200)+"...", got)

	short := strings.Repeat("b", 150)
	assert.Equal(t, short, rag.Preview(short))

	exact := strings.Repeat("c", 200)
	assert.Equal(t, exact, rag.Preview(exact))
}

func TestPreviewCountsCharacters(t *testing.T) {
	text := strings.Repeat("설치", 120)
	got := rag.Preview(text)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, 203, utf8.RuneCountInString(got))
}

func TestResolveOmitsFailedPages(t *testing.T) {
	r := rag.NewResolver(fakeRenderer{fail: map[int]bool{4: true}}, "manual", 150)
	sources := []api.SearchResult{
		{Chunk: api.Chunk{ID: 1, Text: strings.Repeat("x", 250), PageNumber: 2, Source: "manual.pdf"}, Score: 0.8},
		{Chunk: api.Chunk{ID: 5, Text: "short", PageNumber: 4, Source: "manual.pdf"}, Score: 0.4},
	}

	c := r.Resolve(context.Background(), []int{2, 3, 4}, sources)

	require.Len(t, c.Images, 2)
	assert.Equal(t, 2, c.Images[0].PageNumber)
	assert.Equal(t, 3, c.Images[1].PageNumber)
	assert.Equal(t, "static/page_images/manual_page_3.png", c.Images[1].Path)

	require.Len(t, c.Sources, 2)
	assert.Equal(t, strings.Repeat("x", 200)+"...", c.Sources[0].Preview)
	assert.Equal(t, "short", c.Sources[1].Preview)
	assert.Equal(t, 4, c.Sources[1].PageNumber)
	assert.Equal(t, 5, c.Sources[1].ChunkID)
	assert.InDelta(t, 0.4, c.Sources[1].Score, 1e-9)
}

func TestResolveWithoutRenderer(t *testing.T) {
	c := rag.NewResolver(nil, "manual.pdf", 150).Resolve(context.Background(), []int{1}, nil)
	assert.Empty(t, c.Images)
	assert.Empty(t, c.Sources)
}
