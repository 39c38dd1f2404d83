package tfidf_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/provider/tfidf"
)

var texts = []string{
	"Unbox the widget and remove the packaging.",
	"Connect the power cable to the rear socket.",
	"Press the reset button for ten seconds.",
}

func dot(a, b []float32) float64 {
	s := 0.0
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestUnfittedVectorizer(t *testing.T) {
	v := tfidf.New()
	_, err := v.EmbedQuery(context.Background(), "unbox")
	assert.ErrorIs(t, err, tfidf.ErrNotFitted)
	assert.Equal(t, uint(0), v.GetDimensions())

	_, err = v.Fit(nil)
	assert.ErrorIs(t, err, tfidf.ErrEmptyCorpus)

	_, err = v.Fit([]string{"the and of"})
	assert.ErrorIs(t, err, tfidf.ErrNoTerms)
}

func TestModelRanksMatchingText(t *testing.T) {
	m, err := tfidf.New().Fit(texts)
	require.NoError(t, err)

	docs, err := m.EmbedDocuments(context.Background(), []*api.EmbedDocumentRequest{{Title: "manual", Chunks: texts}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Len(t, docs[0].Values, len(texts))

	q, err := m.EmbedQuery(context.Background(), "How do I unbox it?")
	require.NoError(t, err)
	assert.Len(t, q, int(m.GetDimensions()))

	best, bestScore := -1, -1.0
	for i, v := range docs[0].Values {
		if s := dot(q, v); s > bestScore {
			best, bestScore = i, s
		}
	}
	assert.Equal(t, 0, best)
}

func TestModelVectorsAreNormalised(t *testing.T) {
	m, err := tfidf.New().Fit(texts)
	require.NoError(t, err)

	v, err := m.EmbedQuery(context.Background(), texts[1])
	require.NoError(t, err)
	assert.InDelta(t, 1.0, math.Sqrt(dot(v, v)), 1e-5)

	zero, err := m.EmbedQuery(context.Background(), "zzz qqq")
	require.NoError(t, err)
	assert.Equal(t, 0.0, dot(zero, zero))
}

func TestFitDeterministic(t *testing.T) {
	a, err := tfidf.New().Fit(texts)
	require.NoError(t, err)
	b, err := tfidf.New().Fit(texts)
	require.NoError(t, err)

	va, _ := a.EmbedQuery(context.Background(), "reset the power")
	vb, _ := b.EmbedQuery(context.Background(), "reset the power")
	assert.Equal(t, va, vb)
}
