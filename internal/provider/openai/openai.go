package openai

import (
	"context"
	"fmt"
	"os"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/sashabaranov/go-openai"
)

const (
	embedMaxDocsLength = 2048

	DefaultChatModel      = openai.GPT4oMini
	DefaultEmbeddingModel = "text-embedding-3-small"
)

type OpenAIProvider struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	vectorDims     int
}

type Option func(*OpenAIProvider)

func WithChatModel(model string) Option {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.chatModel = model
		}
	}
}

func WithEmbeddingModel(model string) Option {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.embeddingModel = model
		}
	}
}

// WithBaseURL points the client at an OpenAI compatible endpoint.
func WithBaseURL(url string) Option {
	return func(p *OpenAIProvider) {
		if url == "" {
			return
		}
		conf := openai.DefaultConfig(os.Getenv("OPENAI_API_KEY"))
		conf.BaseURL = url
		p.client = openai.NewClientWithConfig(conf)
	}
}

func New(opts ...Option) *OpenAIProvider {
	c := openai.NewClient(os.Getenv("OPENAI_API_KEY"))
	p := &OpenAIProvider{
		client:         c,
		chatModel:      DefaultChatModel,
		embeddingModel: DefaultEmbeddingModel,
		vectorDims:     1024,
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p OpenAIProvider) Generate(ctx context.Context, req api.ChatRequest) (*api.Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Query,
	})

	openaiReq := openai.ChatCompletionRequest{
		Model:       p.chatModel,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.ModelName != "" {
		openaiReq.Model = req.ModelName
	}

	resp, err := p.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return &api.Completion{
		Text:        resp.Choices[0].Message.Content,
		Model:       resp.Model,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}

func (p OpenAIProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	openaiReq := &openai.EmbeddingRequestStrings{
		Input:          []string{q},
		Model:          openai.EmbeddingModel(p.embeddingModel),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		Dimensions:     p.vectorDims,
	}

	res, err := p.client.CreateEmbeddings(ctx, openaiReq)
	if err != nil {
		return nil, err
	}

	if len(res.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}
	return res.Data[0].Embedding, nil
}

func (p OpenAIProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	docEmbeddings := make([]*api.DocumentEmbedding, 0, len(docs))

	for _, doc := range docs {
		if len(doc.Chunks) > embedMaxDocsLength {
			return nil, fmt.Errorf("length of chunks exceeds limit: accepts '%d', received '%d'", embedMaxDocsLength, len(doc.Chunks))
		}

		openaiReq := &openai.EmbeddingRequestStrings{
			Input:          doc.Chunks,
			Model:          openai.EmbeddingModel(p.embeddingModel),
			EncodingFormat: openai.EmbeddingEncodingFormatFloat,
			Dimensions:     p.vectorDims,
		}

		res, err := p.client.CreateEmbeddings(ctx, openaiReq)
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings for document '%s': %w", doc.Title, err)
		}

		vals := make([][]float32, len(res.Data))
		for _, e := range res.Data {
			vals[e.Index] = e.Embedding
		}

		docEmbeddings = append(docEmbeddings, &api.DocumentEmbedding{
			Title:  doc.Title,
			Chunks: doc.Chunks,
			Values: vals,
		})
	}

	return docEmbeddings, nil
}

func (p OpenAIProvider) GetDimensions() uint {
	return uint(p.vectorDims)
}
