package provider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/pdfqa/internal/provider"
)

func TestNewEmbedderUnknown(t *testing.T) {
	_, err := provider.NewEmbedder("word2vec", provider.Settings{})
	assert.ErrorIs(t, err, provider.ErrUnknownEmbedder)

	_, err = provider.NewGenerator("eliza", provider.Settings{})
	assert.ErrorIs(t, err, provider.ErrUnknownGenerator)

	_, err = provider.NewExtractor("pdfminer", provider.Settings{})
	assert.ErrorIs(t, err, provider.ErrUnknownExtractor)
}

func TestTFIDFEmbedderIsFitter(t *testing.T) {
	e, err := provider.NewEmbedder("tfidf", provider.Settings{})
	require.NoError(t, err)

	f, ok := e.(provider.Fitter)
	require.True(t, ok, "tfidf embedder must be fittable")

	fitted, err := f.Fit([]string{"unbox the widget", "connect the cable"})
	require.NoError(t, err)
	assert.Greater(t, fitted.GetDimensions(), uint(0))

	v, err := fitted.EmbedQuery(context.Background(), "widget")
	require.NoError(t, err)
	assert.Len(t, v, int(fitted.GetDimensions()))

	_, err = f.Fit(nil)
	assert.Error(t, err)
}

func TestNewExtractor(t *testing.T) {
	for _, name := range []string{"tabula", "mistral"} {
		e, err := provider.NewExtractor(name, provider.Settings{})
		require.NoError(t, err, name)
		assert.NotNil(t, e, name)
	}
}

func TestDefaultChatModel(t *testing.T) {
	assert.Equal(t, "gpt-4o-mini", provider.DefaultChatModel("openai"))
	assert.Equal(t, "gemini-2.0-flash", provider.DefaultChatModel("gemini"))
	assert.Empty(t, provider.DefaultChatModel("tfidf"))
}
