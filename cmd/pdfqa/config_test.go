package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/pdfqa/internal/vector"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pdfqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadConfigDefaults(t *testing.T) {
	conf, err := ReadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 50051, conf.Server.ListenPort)
	assert.Equal(t, "memory", conf.VectorStore.Type)
	assert.Equal(t, 1000, conf.Chunking.Size)
	assert.Equal(t, 200, conf.Chunking.Overlap)
	assert.Equal(t, 3, conf.Retrieval.K)
	assert.InDelta(t, 0.7, conf.Generation.Temperature, 1e-6)
	assert.Equal(t, 1500, conf.Generation.MaxTokens)
	assert.Equal(t, 150, conf.Render.DPI)
	assert.Equal(t, "static/page_images", conf.Render.OutputDir)

	level, err := conf.logLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestReadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_port: 6000
vector_store:
  type: qdrant
  qdrant:
    host: qdrant.internal
chunking:
  size: 500
  overlap: 0
providers:
  embedder: tfidf
  generator: gemini
log_level: debug
`)

	conf, err := ReadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6000, conf.Server.ListenPort)
	assert.Equal(t, "qdrant", conf.VectorStore.Type)
	assert.Equal(t, "qdrant.internal", conf.VectorStore.Qdrant.Host)
	assert.Equal(t, 6334, conf.VectorStore.Qdrant.Port)
	assert.Equal(t, 500, conf.Chunking.Size)
	assert.Equal(t, 0, conf.Chunking.Overlap)
	assert.Equal(t, "tfidf", conf.Providers.Embedder)
	assert.Equal(t, "tabula", conf.Providers.Extractor)
	assert.Equal(t, "localhost:6379", conf.Transport.Addr)

	level, err := conf.logLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestReadConfigErrors(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = ReadConfig(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)

	_, err = ReadConfig(writeConfig(t, "log_level: loud\n"))
	assert.ErrorContains(t, err, "log_level")
}

func TestLogLevel(t *testing.T) {
	conf := defaultConfig()
	conf.LogLevel = "debug"
	level, err := conf.logLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	conf.LogLevel = "loud"
	_, err = conf.logLevel()
	assert.Error(t, err)
}

func TestEmbedderName(t *testing.T) {
	conf := defaultConfig()
	assert.Equal(t, "openai", conf.embedderName())

	conf.Providers.EmbeddingModel = "text-embedding-3-large"
	assert.Equal(t, "openai/text-embedding-3-large", conf.embedderName())
}

func TestNewEngine(t *testing.T) {
	conf := defaultConfig()
	conf.Providers.Embedder = "tfidf"
	conf.Providers.Generator = ""

	engine, closeEngine, err := newEngine(&conf)
	require.NoError(t, err)
	defer closeEngine()
	assert.False(t, engine.Ready())
	assert.Equal(t, 3, engine.DefaultK())

	conf.VectorStore.Type = "faiss"
	_, _, err = newEngine(&conf)
	assert.ErrorIs(t, err, vector.ErrInvalidStoreType)

	conf.VectorStore.Type = "memory"
	conf.Providers.Embedder = "word2vec"
	_, _, err = newEngine(&conf)
	assert.Error(t, err)
}
