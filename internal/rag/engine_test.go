package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/provider"
	"github.com/alan-mat/pdfqa/internal/rag"
	"github.com/alan-mat/pdfqa/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, opts ...rag.Option) *rag.Engine {
	t.Helper()

	base := []rag.Option{
		rag.WithEmbedder("keyword", newKeywordEmbedder("unbox", "bracket", "cable", "battery", "warranty")),
		rag.WithGenerator(&fakeGenerator{text: "answer", model: "fake-1", tokens: 42}),
	}
	e, err := rag.NewEngine(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestNewEngineRequiresEmbedder(t *testing.T) {
	_, err := rag.NewEngine()
	assert.ErrorIs(t, err, rag.ErrNoEmbedder)
}

func TestNotReadyBeforeBuild(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	assert.False(t, e.Ready())

	_, err := e.Search(ctx, "unbox", 3)
	assert.ErrorIs(t, err, api.ErrNotReady)

	_, err = e.Query(ctx, "how do I unbox it?", 3)
	assert.ErrorIs(t, err, api.ErrNotReady)

	_, err = e.DocumentInfo()
	assert.ErrorIs(t, err, api.ErrNotReady)
}

func TestSearchWithFittedTFIDF(t *testing.T) {
	emb, err := provider.NewEmbedder("tfidf", provider.Settings{})
	require.NoError(t, err)
	e := newEngine(t, rag.WithEmbedder("tfidf", emb))
	ctx := context.Background()

	c, err := e.BuildCorpus(ctx, widgetPages(), 1000, 200, rag.WithSource("widget.pdf"))
	require.NoError(t, err)
	require.Equal(t, 5, c.Len())

	results, err := e.Search(ctx, "unbox", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 3)

	for i, r := range results {
		assert.GreaterOrEqual(t, r.PageNumber, 1)
		assert.LessOrEqual(t, r.PageNumber, 5)
		assert.Equal(t, "widget.pdf", r.Source)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
		}
	}
	assert.Contains(t, []int{1, 4}, results[0].PageNumber)
	assert.Contains(t, strings.ToLower(results[0].Text), "unbox")
}

func TestSearchDefaultsK(t *testing.T) {
	e := newEngine(t, rag.WithDefaultK(2))
	ctx := context.Background()

	_, err := e.BuildCorpus(ctx, widgetPages(), 1000, 200)
	require.NoError(t, err)

	results, err := e.Search(ctx, "cable", 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 3, results[0].PageNumber)
}

func TestSearchOnPage(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.BuildCorpus(ctx, widgetPages(), 1000, 200)
	require.NoError(t, err)

	results, err := e.Search(ctx, "unbox", 5, rag.OnPage(4))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 4, results[0].PageNumber)

	for _, page := range []int{-1, 6} {
		_, err = e.Search(ctx, "unbox", 5, rag.OnPage(page))
		assert.ErrorIs(t, err, api.ErrInvalidPage, "page %d", page)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	e := newEngine(t)
	_, err := e.Search(context.Background(), "   ", 3)
	assert.ErrorIs(t, err, api.ErrEmptyInput)
}

func TestBuildRejectsBlankDocument(t *testing.T) {
	e := newEngine(t)

	_, err := e.BuildCorpus(context.Background(), []api.Page{api.NewPage(1, "  \n "), api.NewPage(2, "")}, 1000, 200)
	assert.ErrorIs(t, err, api.ErrEmptyInput)
	assert.False(t, e.Ready())
}

func TestBuildRejectsInvalidChunking(t *testing.T) {
	e := newEngine(t)

	_, err := e.BuildCorpus(context.Background(), widgetPages(), 100, 100)
	assert.Error(t, err)
	assert.False(t, e.Ready())
}

func TestBuildEmbedFailureKeepsPreviousCorpus(t *testing.T) {
	emb := newKeywordEmbedder("unbox")
	e := newEngine(t, rag.WithEmbedder("keyword", emb))
	ctx := context.Background()

	first, err := e.BuildCorpus(ctx, widgetPages(), 1000, 200)
	require.NoError(t, err)

	emb.docErr = errors.New("quota exceeded")
	_, err = e.BuildCorpus(ctx, widgetPages()[:2], 1000, 200)
	assert.ErrorIs(t, err, api.ErrDependency)
	assert.Same(t, first, e.Current())
}

func TestBuildBatchesEmbeddingCalls(t *testing.T) {
	emb := newKeywordEmbedder("unbox")
	e := newEngine(t,
		rag.WithEmbedder("keyword", emb),
		rag.WithBatchSize(2),
		rag.WithRateLimit(1000, 1),
	)

	_, err := e.BuildCorpus(context.Background(), widgetPages(), 1000, 200)
	require.NoError(t, err)
	assert.Equal(t, 3, emb.calls())
}

func TestQuery(t *testing.T) {
	gen := &fakeGenerator{text: "**Overview**\nUnbox it.", model: "fake-1", tokens: 42}
	e := newEngine(t, rag.WithGenerator(gen), rag.WithChatModel("gpt-4o-mini"), rag.WithMaxTokens(1500))
	ctx := context.Background()

	_, err := e.BuildCorpus(ctx, widgetPages(), 1000, 200, rag.WithSource("widget.pdf"))
	require.NoError(t, err)

	res, err := e.Query(ctx, "How do I unbox the remote?", 3)
	require.NoError(t, err)

	assert.Equal(t, "How do I unbox the remote?", res.Question)
	assert.Equal(t, "**Overview**\nUnbox it.", res.Answer)
	assert.Equal(t, "fake-1", res.Model)
	assert.Equal(t, 42, res.TotalTokens)
	require.Len(t, res.SourceChunks, 3)
	assert.Equal(t, rag.DeriveReferencedPages(res.SourceChunks), res.ReferencedPages)

	req := gen.request()
	assert.Equal(t, rag.DefaultSystemPrompt, req.SystemPrompt)
	assert.Equal(t, "gpt-4o-mini", req.ModelName)
	assert.Equal(t, 1500, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	assert.Contains(t, req.Query, "[Document 1 - Page ")
	assert.Contains(t, req.Query, "Question: How do I unbox the remote?")
}

func TestQueryFallsBackToConfiguredModel(t *testing.T) {
	e := newEngine(t, rag.WithGenerator(&fakeGenerator{text: "ok"}))
	ctx := context.Background()

	_, err := e.BuildCorpus(ctx, widgetPages(), 1000, 200)
	require.NoError(t, err)

	res, err := e.Query(ctx, "warranty?", 1)
	require.NoError(t, err)
	assert.Equal(t, rag.DefaultChatModel, res.Model)
}

func TestQueryCustomSystemPrompt(t *testing.T) {
	gen := &fakeGenerator{text: "plain answer"}
	e := newEngine(t, rag.WithGenerator(gen))
	ctx := context.Background()

	_, err := e.BuildCorpus(ctx, widgetPages(), 1000, 200)
	require.NoError(t, err)

	res, err := e.Query(ctx, "warranty?", 2, rag.WithSystemPrompt("Answer in one line."))
	require.NoError(t, err)
	assert.Equal(t, "Answer in one line.", gen.request().SystemPrompt)
	assert.Empty(t, rag.ParseSections(res.Answer))
}

func TestQueryErrors(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("upstream 503")

	t.Run("blank question", func(t *testing.T) {
		e := newEngine(t)
		_, err := e.Query(ctx, "\t", 3)
		assert.ErrorIs(t, err, api.ErrEmptyInput)
	})

	t.Run("generator failure", func(t *testing.T) {
		e := newEngine(t, rag.WithGenerator(&fakeGenerator{err: cause}))
		_, err := e.BuildCorpus(ctx, widgetPages(), 1000, 200)
		require.NoError(t, err)

		_, err = e.Query(ctx, "unbox", 3)
		assert.ErrorIs(t, err, api.ErrDependency)
		assert.ErrorIs(t, err, cause)

		var de api.DependencyError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "generator", de.Dependency)
	})

	t.Run("query embedding failure", func(t *testing.T) {
		emb := newKeywordEmbedder("unbox")
		e := newEngine(t, rag.WithEmbedder("keyword", emb))
		_, err := e.BuildCorpus(ctx, widgetPages(), 1000, 200)
		require.NoError(t, err)

		emb.queryErr = cause
		_, err = e.Query(ctx, "unbox", 3)
		assert.ErrorIs(t, err, api.ErrDependency)
		assert.ErrorIs(t, err, cause)
	})
}

func TestRebuildSwapsAtomically(t *testing.T) {
	store := vector.NewMemoryStore()
	gen := &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
	e := newEngine(t, rag.WithVectorStore(store), rag.WithGenerator(gen))
	ctx := context.Background()

	first, err := e.BuildCorpus(ctx, widgetPages()[:2], 1000, 200, rag.WithSource("first.pdf"), rag.WithDocumentPath("/docs/first.pdf"))
	require.NoError(t, err)

	type outcome struct {
		res *api.AnswerResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.Query(ctx, "bracket", 3)
		done <- outcome{res, err}
	}()

	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("query never reached the generator")
	}

	second, err := e.BuildCorpus(ctx, widgetPages()[2:], 1000, 200, rag.WithSource("second.pdf"), rag.WithDocumentPath("/docs/second.pdf"))
	require.NoError(t, err)
	assert.Same(t, second, e.Current())

	// the in-flight query still holds the first corpus
	exists, err := store.CollectionExists(ctx, first.Collection())
	require.NoError(t, err)
	assert.True(t, exists)

	close(gen.release)
	out := <-done
	require.NoError(t, out.err)
	for _, r := range out.res.SourceChunks {
		assert.Equal(t, "first.pdf", r.Source)
	}
	assert.Equal(t, first.ID, out.res.CorpusID)
	assert.Equal(t, "/docs/first.pdf", out.res.Document)

	exists, err = store.CollectionExists(ctx, first.Collection())
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = store.CollectionExists(ctx, second.Collection())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBuildCommitFailureKeepsPreviousCorpus(t *testing.T) {
	store := vector.NewMemoryStore()
	e := newEngine(t, rag.WithVectorStore(store))
	ctx := context.Background()

	first, err := e.BuildCorpus(ctx, widgetPages(), 1000, 200)
	require.NoError(t, err)

	var committed *rag.Corpus
	cause := errors.New("disk full")
	_, err = e.BuildCorpus(ctx, widgetPages()[:2], 1000, 200, rag.WithCommit(func(ctx context.Context, c *rag.Corpus) error {
		committed = c
		assert.Same(t, first, e.Current())
		return cause
	}))
	assert.ErrorIs(t, err, cause)
	assert.Same(t, first, e.Current())

	require.NotNil(t, committed)
	exists, err := store.CollectionExists(ctx, committed.Collection())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRestoreReusesStoredVectors(t *testing.T) {
	ctx := context.Background()
	built := newEngine(t)
	c, err := built.BuildCorpus(ctx, widgetPages(), 1000, 200, rag.WithSource("widget.pdf"), rag.WithDocumentPath("/tmp/widget.pdf"))
	require.NoError(t, err)
	snap := c.Snapshot()

	emb := newKeywordEmbedder("unbox", "bracket", "cable", "battery", "warranty")
	restored := newEngine(t, rag.WithEmbedder("keyword", emb))
	rc, err := restored.Restore(ctx, snap)
	require.NoError(t, err)
	assert.Zero(t, emb.calls())
	assert.Equal(t, c.ID, rc.ID)

	info, err := restored.DocumentInfo()
	require.NoError(t, err)
	assert.Equal(t, c.Info(), info)

	results, err := restored.Search(ctx, "bracket", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].PageNumber)
}

func TestRestoreReembedsForOtherEmbedder(t *testing.T) {
	ctx := context.Background()
	built := newEngine(t)
	c, err := built.BuildCorpus(ctx, widgetPages(), 1000, 200)
	require.NoError(t, err)

	emb := newKeywordEmbedder("cable")
	restored := newEngine(t, rag.WithEmbedder("other", emb))
	_, err = restored.Restore(ctx, c.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls())

	results, err := restored.Search(ctx, "cable", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, results[0].PageNumber)
}

func TestCorpusSnapshotIsDetached(t *testing.T) {
	e := newEngine(t)
	c, err := e.BuildCorpus(context.Background(), widgetPages(), 1000, 200)
	require.NoError(t, err)

	snap := c.Snapshot()
	snap.Chunks[0].Text = "changed"
	chunk, ok := c.Chunk(0)
	require.True(t, ok)
	assert.NotEqual(t, "changed", chunk.Text)
	assert.Equal(t, 5, snap.TotalPages)
}
