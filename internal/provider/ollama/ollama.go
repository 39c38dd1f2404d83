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

package ollama

import (
	"context"
	"fmt"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/http"
)

const (
	Endpoint = "http://localhost:11434"

	DefaultChatModel      = "gemma3:4b"
	DefaultEmbeddingModel = "nomic-embed-text"
)

type OllamaProvider struct {
	client         http.Client
	chatModel      string
	embeddingModel string
	vectorDims     uint
}

type chatMsgPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model           string         `json:"model"`
	CreatedAt       string         `json:"created_at"`
	Message         chatMsgPayload `json:"message"`
	Done            bool           `json:"done"`
	PromptEvalCount int            `json:"prompt_eval_count"`
	EvalCount       int            `json:"eval_count"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type Option func(*OllamaProvider)

func WithEndpoint(endpoint string) Option {
	return func(p *OllamaProvider) {
		if endpoint != "" {
			p.client = http.NewClient(endpoint, http.WithMaxRetries(3))
		}
	}
}

func WithChatModel(model string) Option {
	return func(p *OllamaProvider) {
		if model != "" {
			p.chatModel = model
		}
	}
}

func WithEmbeddingModel(model string) Option {
	return func(p *OllamaProvider) {
		if model != "" {
			p.embeddingModel = model
		}
	}
}

// WithDimensions sets the vector size reported for the embedding model.
func WithDimensions(dims uint) Option {
	return func(p *OllamaProvider) {
		if dims > 0 {
			p.vectorDims = dims
		}
	}
}

func New(opts ...Option) *OllamaProvider {
	c := http.NewClient(
		Endpoint,
		http.WithMaxRetries(3),
	)
	p := &OllamaProvider{
		client:         c,
		chatModel:      DefaultChatModel,
		embeddingModel: DefaultEmbeddingModel,
		vectorDims:     768,
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p OllamaProvider) Generate(ctx context.Context, req api.ChatRequest) (*api.Completion, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("completion request failed: missing parameter 'query' in request")
	}

	model := p.chatModel
	if req.ModelName != "" {
		model = req.ModelName
	}

	messages := make([]chatMsgPayload, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMsgPayload{
			Role:    "system",
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, chatMsgPayload{
		Role:    "user",
		Content: req.Query,
	})

	options := map[string]any{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	requestData := map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   false,
		"options":  options,
	}

	var resp chatResponse
	if err := p.client.Request(ctx, http.MethodPost, "/api/chat", requestData, &resp); err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}

	return &api.Completion{
		Text:        resp.Message.Content,
		Model:       resp.Model,
		TotalTokens: resp.PromptEvalCount + resp.EvalCount,
	}, nil
}

func (p OllamaProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p OllamaProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	embeddings := make([]*api.DocumentEmbedding, 0, len(docs))
	for _, doc := range docs {
		vectors, err := p.embed(ctx, doc.Chunks)
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings for document '%s': %w", doc.Title, err)
		}

		embeddings = append(embeddings, &api.DocumentEmbedding{
			Title:  doc.Title,
			Chunks: doc.Chunks,
			Values: vectors,
		})
	}
	return embeddings, nil
}

func (p OllamaProvider) GetDimensions() uint {
	return p.vectorDims
}

func (p OllamaProvider) embed(ctx context.Context, input []string) ([][]float32, error) {
	requestData := map[string]any{
		"model": p.embeddingModel,
		"input": input,
	}

	var resp embedResponse
	if err := p.client.Request(ctx, http.MethodPost, "/api/embed", requestData, &resp); err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}

	if len(resp.Embeddings) != len(input) {
		return nil, fmt.Errorf("embed request returned %d vectors for %d inputs", len(resp.Embeddings), len(input))
	}
	return resp.Embeddings, nil
}
