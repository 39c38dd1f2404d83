// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/alan-mat/pdfqa/internal/chunker"
	"github.com/alan-mat/pdfqa/internal/pdf"
	"github.com/alan-mat/pdfqa/internal/rag"
	"github.com/alan-mat/pdfqa/worker"
)

type redisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type qdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	UseTLS bool   `yaml:"use_tls"`
}

type vectorStoreConfig struct {
	Type   string       `yaml:"type"`
	Qdrant qdrantConfig `yaml:"qdrant"`
}

type workerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type serverConfig struct {
	ListenHost string `yaml:"listen_host"`
	ListenPort int    `yaml:"listen_port"`
}

type storageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type providersConfig struct {
	Embedder  string `yaml:"embedder"`
	Generator string `yaml:"generator"`
	Extractor string `yaml:"extractor"`

	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	Endpoint       string `yaml:"endpoint"`
	Dimensions     uint   `yaml:"dimensions"`
}

type chunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type retrievalConfig struct {
	K int `yaml:"k"`
}

type generationConfig struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	SystemPrompt string  `yaml:"system_prompt"`
}

type renderConfig struct {
	DPI       int    `yaml:"dpi"`
	OutputDir string `yaml:"output_dir"`
}

type embeddingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	BatchSize         int     `yaml:"batch_size"`
}

type config struct {
	Server serverConfig `yaml:"server"`
	Worker workerConfig `yaml:"worker"`

	Transport   redisConfig       `yaml:"transport"`
	VectorStore vectorStoreConfig `yaml:"vector_store"`
	Storage     storageConfig     `yaml:"storage"`

	Providers  providersConfig  `yaml:"providers"`
	Chunking   chunkingConfig   `yaml:"chunking"`
	Retrieval  retrievalConfig  `yaml:"retrieval"`
	Generation generationConfig `yaml:"generation"`
	Render     renderConfig     `yaml:"render"`
	Embedding  embeddingConfig  `yaml:"embedding"`

	LogLevel string `yaml:"log_level"`
}

func defaultConfig() config {
	return config{
		Server: serverConfig{ListenPort: 50051},
		Worker: workerConfig{Concurrency: worker.DefaultConcurrency},
		Transport: redisConfig{
			Addr: "localhost:6379",
		},
		VectorStore: vectorStoreConfig{
			Type:   "memory",
			Qdrant: qdrantConfig{Host: "localhost", Port: 6334},
		},
		Storage: storageConfig{DataDir: "data"},
		Providers: providersConfig{
			Embedder:  "openai",
			Generator: "openai",
			Extractor: "tabula",
		},
		Chunking: chunkingConfig{
			Size:    chunker.DefaultChunkSize,
			Overlap: chunker.DefaultChunkOverlap,
		},
		Retrieval: retrievalConfig{K: rag.DefaultK},
		Generation: generationConfig{
			Temperature: rag.DefaultTemperature,
			MaxTokens:   rag.DefaultMaxTokens,
		},
		Render: renderConfig{
			DPI:       pdf.DefaultDPI,
			OutputDir: pdf.DefaultOutputDir,
		},
		Embedding: embeddingConfig{BatchSize: rag.DefaultBatchSize},
		LogLevel:  "info",
	}
}

// ReadConfig reads a YAML config on top of the defaults. An empty path
// returns the defaults.
func ReadConfig(path string) (*config, error) {
	conf := defaultConfig()
	if path == "" {
		return &conf, nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(file, &conf); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if _, err := conf.logLevel(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
