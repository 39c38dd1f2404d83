package gemini

import (
	"context"
	"fmt"
	"os"

	"github.com/alan-mat/pdfqa/internal/api"
	"google.golang.org/genai"
)

const (
	DefaultChatModel      = "gemini-2.0-flash"
	DefaultEmbeddingModel = "gemini-embedding-exp-03-07"

	embedMaxTexts = 100
)

type GeminiProvider struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
	vectorDims     *int32
}

type Option func(*GeminiProvider)

func WithChatModel(model string) Option {
	return func(p *GeminiProvider) {
		if model != "" {
			p.chatModel = model
		}
	}
}

func WithEmbeddingModel(model string) Option {
	return func(p *GeminiProvider) {
		if model != "" {
			p.embeddingModel = model
		}
	}
}

func New(opts ...Option) (*GeminiProvider, error) {
	c, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	p := &GeminiProvider{
		client:         c,
		chatModel:      DefaultChatModel,
		embeddingModel: DefaultEmbeddingModel,
		vectorDims:     new(int32),
	}
	*(p.vectorDims) = 1536

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p GeminiProvider) Generate(ctx context.Context, req api.ChatRequest) (*api.Completion, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     &req.Temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, "")
	}

	model := p.chatModel
	if req.ModelName != "" {
		model = req.ModelName
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(req.Query), config)
	if err != nil {
		return nil, fmt.Errorf("generate content request failed: %w", err)
	}

	completion := &api.Completion{
		Text:  resp.Text(),
		Model: model,
	}
	if resp.ModelVersion != "" {
		completion.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		completion.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return completion, nil
}

func (p GeminiProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	config := &genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_QUERY",
		OutputDimensionality: p.vectorDims,
	}

	res, err := p.client.Models.EmbedContent(ctx, p.embeddingModel, genai.Text(q), config)
	if err != nil {
		return nil, err
	}

	if len(res.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}
	return res.Embeddings[0].Values, nil
}

func (p GeminiProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	embeddings := make([]*api.DocumentEmbedding, 0, len(docs))

	for _, doc := range docs {
		values := make([][]float32, 0, len(doc.Chunks))

		for start := 0; start < len(doc.Chunks); start += embedMaxTexts {
			end := min(start+embedMaxTexts, len(doc.Chunks))

			contents := make([]*genai.Content, 0, end-start)
			for _, chunk := range doc.Chunks[start:end] {
				contents = append(contents, genai.NewContentFromText(chunk, genai.RoleUser))
			}

			config := &genai.EmbedContentConfig{
				TaskType:             "RETRIEVAL_DOCUMENT",
				Title:                doc.Title,
				OutputDimensionality: p.vectorDims,
			}

			res, err := p.client.Models.EmbedContent(ctx, p.embeddingModel, contents, config)
			if err != nil {
				return nil, fmt.Errorf("failed to create embeddings for document '%s': %w", doc.Title, err)
			}

			for _, e := range res.Embeddings {
				values = append(values, e.Values)
			}
		}

		embeddings = append(embeddings, &api.DocumentEmbedding{
			Title:  doc.Title,
			Values: values,
			Chunks: doc.Chunks,
		})
	}

	return embeddings, nil
}

func (p GeminiProvider) GetDimensions() uint {
	return uint(*p.vectorDims)
}
