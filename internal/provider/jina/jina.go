package jina

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/http"
	"golang.org/x/sync/errgroup"
)

const (
	Endpoint            = "https://api.jina.ai"
	EmbedItemsMaxLength = 2048

	DefaultEmbeddingModel = "jina-embeddings-v3"
)

type embeddingResponse struct {
	Model     string `json:"model"`
	UsageInfo struct {
		TotalTokens  int `json:"total_tokens"`
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type JinaAIProvider struct {
	client         http.Client
	embeddingModel string
	vectorDims     uint
}

type Option func(*JinaAIProvider)

func WithEmbeddingModel(model string) Option {
	return func(p *JinaAIProvider) {
		if model != "" {
			p.embeddingModel = model
		}
	}
}

func WithEndpoint(endpoint string) Option {
	return func(p *JinaAIProvider) {
		if endpoint != "" {
			p.client = http.NewClient(
				endpoint,
				http.WithMaxRetries(3),
				http.WithApiKey(os.Getenv("JINA_API_KEY")),
			)
		}
	}
}

func New(opts ...Option) *JinaAIProvider {
	c := http.NewClient(
		Endpoint,
		http.WithMaxRetries(3),
		http.WithApiKey(os.Getenv("JINA_API_KEY")),
	)
	p := &JinaAIProvider{
		client:         c,
		embeddingModel: DefaultEmbeddingModel,
		vectorDims:     1024,
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p JinaAIProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	resp, err := p.requestEmbedding(ctx, []string{q}, "retrieval.query")
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}

	return resp.Data[0].Embedding, nil
}

// EmbedDocuments sends the chunks of each document in batches of at most
// EmbedItemsMaxLength items, concurrently, and keeps chunk order.
func (p JinaAIProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	embeddings := make([]*api.DocumentEmbedding, 0, len(docs))

	for _, doc := range docs {
		slog.Debug("embedding document", "name", doc.Title, "chunks", len(doc.Chunks))
		vals := make([][]float32, len(doc.Chunks))

		g, gctx := errgroup.WithContext(ctx)
		for start := 0; start < len(doc.Chunks); start += EmbedItemsMaxLength {
			end := min(start+EmbedItemsMaxLength, len(doc.Chunks))

			g.Go(func() error {
				resp, err := p.requestEmbedding(gctx, doc.Chunks[start:end], "retrieval.passage")
				if err != nil {
					return err
				}

				for _, e := range resp.Data {
					if e.Index < 0 || start+e.Index >= end {
						return fmt.Errorf("embedding index %d out of range", e.Index)
					}
					vals[start+e.Index] = e.Embedding
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("failed to create embeddings for document '%s': %w", doc.Title, err)
		}

		embeddings = append(embeddings, &api.DocumentEmbedding{
			Title:  doc.Title,
			Chunks: doc.Chunks,
			Values: vals,
		})
	}

	return embeddings, nil
}

func (p JinaAIProvider) GetDimensions() uint {
	return p.vectorDims
}

func (p JinaAIProvider) requestEmbedding(ctx context.Context, input []string, task string) (*embeddingResponse, error) {
	requestData := map[string]any{
		"input":      input,
		"model":      p.embeddingModel,
		"task":       task,
		"dimensions": p.vectorDims,
	}

	var resp embeddingResponse
	if err := p.client.Request(ctx, http.MethodPost, "/v1/embeddings", requestData, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
