package pdfqa_cohere

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alan-mat/pdfqa/internal/api"
	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	coherecore "github.com/cohere-ai/cohere-go/v2/core"
	"golang.org/x/sync/errgroup"
)

const (
	EmbedMaxTexts = 96

	DefaultChatModel      = "command-r-08-2024"
	DefaultEmbeddingModel = "embed-multilingual-v3.0"
)

type CohereProvider struct {
	client         *cohereclient.Client
	chatModel      string
	embeddingModel string
}

type Option func(*CohereProvider)

func WithChatModel(model string) Option {
	return func(p *CohereProvider) {
		if model != "" {
			p.chatModel = model
		}
	}
}

func WithEmbeddingModel(model string) Option {
	return func(p *CohereProvider) {
		if model != "" {
			p.embeddingModel = model
		}
	}
}

func New(opts ...Option) *CohereProvider {
	c := cohereclient.NewClient(
		cohereclient.WithToken(os.Getenv("COHERE_API_KEY")),
		cohereclient.WithHTTPClient(
			&http.Client{
				Timeout: 60 * time.Second,
			},
		),
	)
	p := &CohereProvider{
		client:         c,
		chatModel:      DefaultChatModel,
		embeddingModel: DefaultEmbeddingModel,
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate streams the chat response and returns the accumulated text.
// The streaming endpoint does not report usage, so TotalTokens is zero.
func (p CohereProvider) Generate(ctx context.Context, req api.ChatRequest) (*api.Completion, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("completion request failed: missing parameter 'query' in request")
	}

	temp := float64(req.Temperature)
	cohereReq := &cohere.V2ChatStreamRequest{
		Model:       p.chatModel,
		Temperature: &temp,
	}
	if req.MaxTokens > 0 {
		cohereReq.MaxTokens = &req.MaxTokens
	}
	if req.ModelName != "" {
		cohereReq.Model = req.ModelName
	}

	if req.SystemPrompt != "" {
		cohereReq.Messages = append(cohereReq.Messages, &cohere.ChatMessageV2{
			Role: "system",
			System: &cohere.SystemMessage{Content: &cohere.SystemMessageContent{
				String: req.SystemPrompt,
			}},
		})
	}

	cohereReq.Messages = append(cohereReq.Messages, &cohere.ChatMessageV2{
		Role: "user",
		User: &cohere.UserMessage{Content: &cohere.UserMessageContent{
			String: req.Query,
		}},
	})

	stream, err := p.client.V2.ChatStream(ctx, cohereReq)
	if err != nil {
		return nil, fmt.Errorf("chat streaming request failed: %w", err)
	}

	text, err := readStream(stream)
	if err != nil {
		return nil, fmt.Errorf("chat stream failed: %w", err)
	}

	return &api.Completion{
		Text:  text,
		Model: cohereReq.Model,
	}, nil
}

func (p CohereProvider) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	resp, err := p.client.V2.Embed(
		ctx,
		&cohere.V2EmbedRequest{
			Texts:          []string{q},
			Model:          p.embeddingModel,
			InputType:      cohere.EmbedInputTypeSearchQuery,
			EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}

	if resp.Embeddings == nil || len(resp.Embeddings.Float) == 0 {
		return nil, fmt.Errorf("embed response contained no vectors")
	}
	return toFloat32(resp.Embeddings.Float[0]), nil
}

// EmbedDocuments embeds each document in batches of EmbedMaxTexts. The
// batches run concurrently and are reassembled in chunk order.
func (p CohereProvider) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	docEmbeddings := make([]*api.DocumentEmbedding, 0, len(docs))

	for _, doc := range docs {
		values := make([][]float32, len(doc.Chunks))

		g, gctx := errgroup.WithContext(ctx)
		for start := 0; start < len(doc.Chunks); start += EmbedMaxTexts {
			end := min(start+EmbedMaxTexts, len(doc.Chunks))

			g.Go(func() error {
				resp, err := p.client.V2.Embed(gctx, &cohere.V2EmbedRequest{
					Texts:          doc.Chunks[start:end],
					Model:          p.embeddingModel,
					InputType:      cohere.EmbedInputTypeSearchDocument,
					EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
				})
				if err != nil {
					return fmt.Errorf("embed request failed: %w", err)
				}

				if resp.Embeddings == nil || len(resp.Embeddings.Float) != end-start {
					return fmt.Errorf("embed response returned an unexpected number of vectors")
				}
				for i, v := range resp.Embeddings.Float {
					values[start+i] = toFloat32(v)
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("failed to create embeddings for document '%s': %w", doc.Title, err)
		}

		docEmbeddings = append(docEmbeddings, &api.DocumentEmbedding{
			Title:  doc.Title,
			Chunks: doc.Chunks,
			Values: values,
		})
	}

	return docEmbeddings, nil
}

func (p CohereProvider) GetDimensions() uint {
	return 1024
}

func readStream(stream *coherecore.Stream[cohere.StreamedChatResponseV2]) (string, error) {
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}

		if resp.ContentDelta != nil {
			sb.WriteString(*resp.ContentDelta.Delta.Message.Content.Text)
		}
	}
}

func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, 0, len(f64))
	for _, f := range f64 {
		f32 = append(f32, float32(f))
	}
	return f32
}
