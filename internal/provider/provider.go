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

// Package provider declares the collaborators the question answering
// pipeline depends on and resolves them by name.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/pdf"
	pdfqa_cohere "github.com/alan-mat/pdfqa/internal/provider/cohere"
	"github.com/alan-mat/pdfqa/internal/provider/gemini"
	"github.com/alan-mat/pdfqa/internal/provider/jina"
	"github.com/alan-mat/pdfqa/internal/provider/mistral"
	"github.com/alan-mat/pdfqa/internal/provider/ollama"
	"github.com/alan-mat/pdfqa/internal/provider/openai"
	"github.com/alan-mat/pdfqa/internal/provider/tfidf"
	"github.com/alan-mat/pdfqa/internal/registry"
)

var (
	ErrUnknownEmbedder  = errors.New("no embedder found for given name")
	ErrUnknownGenerator = errors.New("no generator found for given name")
	ErrUnknownExtractor = errors.New("no extractor found for given name")
)

type Embedder interface {
	EmbedQuery(ctx context.Context, q string) ([]float32, error)
	EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error)
	GetDimensions() uint
}

// Fitter is implemented by embedders whose vector space is derived from
// the corpus. Fit returns a new embedder bound to the given texts and
// leaves the receiver unchanged.
type Fitter interface {
	Fit(texts []string) (Embedder, error)
}

type Generator interface {
	Generate(ctx context.Context, req api.ChatRequest) (*api.Completion, error)
}

type Extractor interface {
	Extract(ctx context.Context, path string) ([]api.Page, error)
}

// Settings carries the per provider overrides read from configuration.
// Empty fields keep the provider defaults.
type Settings struct {
	ChatModel      string
	EmbeddingModel string
	Endpoint       string
	Dimensions     uint
}

type (
	embedderFactory  func(Settings) (Embedder, error)
	generatorFactory func(Settings) (Generator, error)
	extractorFactory func(Settings) (Extractor, error)
)

var (
	embedders  = registry.New[string, embedderFactory]()
	generators = registry.New[string, generatorFactory]()
	extractors = registry.New[string, extractorFactory]()
)

func init() {
	embedders.RegisterMany(
		registry.Entry[string, embedderFactory]{Key: "tfidf", Value: func(Settings) (Embedder, error) {
			return fittedTFIDF{tfidf.New()}, nil
		}},
		registry.Entry[string, embedderFactory]{Key: "openai", Value: func(s Settings) (Embedder, error) {
			return openai.New(openai.WithEmbeddingModel(s.EmbeddingModel), openai.WithBaseURL(s.Endpoint)), nil
		}},
		registry.Entry[string, embedderFactory]{Key: "gemini", Value: func(s Settings) (Embedder, error) {
			p, err := gemini.New(gemini.WithEmbeddingModel(s.EmbeddingModel))
			if err != nil {
				return nil, err
			}
			return p, nil
		}},
		registry.Entry[string, embedderFactory]{Key: "cohere", Value: func(s Settings) (Embedder, error) {
			return pdfqa_cohere.New(pdfqa_cohere.WithEmbeddingModel(s.EmbeddingModel)), nil
		}},
		registry.Entry[string, embedderFactory]{Key: "jina", Value: func(s Settings) (Embedder, error) {
			return jina.New(jina.WithEmbeddingModel(s.EmbeddingModel), jina.WithEndpoint(s.Endpoint)), nil
		}},
		registry.Entry[string, embedderFactory]{Key: "ollama", Value: func(s Settings) (Embedder, error) {
			return ollama.New(
				ollama.WithEndpoint(s.Endpoint),
				ollama.WithEmbeddingModel(s.EmbeddingModel),
				ollama.WithDimensions(s.Dimensions),
			), nil
		}},
	)

	generators.RegisterMany(
		registry.Entry[string, generatorFactory]{Key: "openai", Value: func(s Settings) (Generator, error) {
			return openai.New(openai.WithChatModel(s.ChatModel), openai.WithBaseURL(s.Endpoint)), nil
		}},
		registry.Entry[string, generatorFactory]{Key: "gemini", Value: func(s Settings) (Generator, error) {
			p, err := gemini.New(gemini.WithChatModel(s.ChatModel))
			if err != nil {
				return nil, err
			}
			return p, nil
		}},
		registry.Entry[string, generatorFactory]{Key: "cohere", Value: func(s Settings) (Generator, error) {
			return pdfqa_cohere.New(pdfqa_cohere.WithChatModel(s.ChatModel)), nil
		}},
		registry.Entry[string, generatorFactory]{Key: "ollama", Value: func(s Settings) (Generator, error) {
			return ollama.New(ollama.WithEndpoint(s.Endpoint), ollama.WithChatModel(s.ChatModel)), nil
		}},
	)

	extractors.RegisterMany(
		registry.Entry[string, extractorFactory]{Key: "tabula", Value: func(Settings) (Extractor, error) {
			return pdf.NewExtractor(), nil
		}},
		registry.Entry[string, extractorFactory]{Key: "mistral", Value: func(s Settings) (Extractor, error) {
			return mistral.New(mistral.WithEndpoint(s.Endpoint)), nil
		}},
	)
}

func NewEmbedder(name string, s Settings) (Embedder, error) {
	factory, ok := embedders.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: '%s' (available: %v)", ErrUnknownEmbedder, name, registry.Names(embedders))
	}
	return factory(s)
}

func NewGenerator(name string, s Settings) (Generator, error) {
	factory, ok := generators.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: '%s' (available: %v)", ErrUnknownGenerator, name, registry.Names(generators))
	}
	return factory(s)
}

func NewExtractor(name string, s Settings) (Extractor, error) {
	factory, ok := extractors.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: '%s' (available: %v)", ErrUnknownExtractor, name, registry.Names(extractors))
	}
	return factory(s)
}

// fittedTFIDF adapts the tfidf vectorizer to Fitter.
type fittedTFIDF struct {
	*tfidf.Vectorizer
}

func (f fittedTFIDF) Fit(texts []string) (Embedder, error) {
	m, err := f.Vectorizer.Fit(texts)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DefaultChatModel returns the model a generator answers with when no
// override is configured.
func DefaultChatModel(generator string) string {
	switch generator {
	case "openai":
		return openai.DefaultChatModel
	case "gemini":
		return gemini.DefaultChatModel
	case "cohere":
		return pdfqa_cohere.DefaultChatModel
	case "ollama":
		return ollama.DefaultChatModel
	}
	return ""
}
