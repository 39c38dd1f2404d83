package rag_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alan-mat/pdfqa/internal/api"
)

// keywordEmbedder counts vocabulary words. The trailing constant keeps
// vectors non-zero so every chunk has a defined cosine score.
type keywordEmbedder struct {
	vocab []string

	mu       sync.Mutex
	docCalls int
	queryErr error
	docErr   error
}

func newKeywordEmbedder(vocab ...string) *keywordEmbedder {
	return &keywordEmbedder{vocab: vocab}
}

func (e *keywordEmbedder) embed(text string) []float32 {
	text = strings.ToLower(text)
	v := make([]float32, len(e.vocab)+1)
	for i, w := range e.vocab {
		v[i] = float32(strings.Count(text, w))
	}
	v[len(e.vocab)] = 0.01
	return v
}

func (e *keywordEmbedder) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	return e.embed(q), nil
}

func (e *keywordEmbedder) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	e.mu.Lock()
	e.docCalls++
	e.mu.Unlock()

	if e.docErr != nil {
		return nil, e.docErr
	}

	out := make([]*api.DocumentEmbedding, 0, len(docs))
	for _, d := range docs {
		values := make([][]float32, 0, len(d.Chunks))
		for _, c := range d.Chunks {
			values = append(values, e.embed(c))
		}
		out = append(out, &api.DocumentEmbedding{Title: d.Title, Chunks: d.Chunks, Values: values})
	}
	return out, nil
}

func (e *keywordEmbedder) GetDimensions() uint {
	return uint(len(e.vocab) + 1)
}

func (e *keywordEmbedder) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.docCalls
}

type fakeGenerator struct {
	text   string
	model  string
	tokens int
	err    error

	mu   sync.Mutex
	last api.ChatRequest
}

func (g *fakeGenerator) Generate(ctx context.Context, req api.ChatRequest) (*api.Completion, error) {
	g.mu.Lock()
	g.last = req
	g.mu.Unlock()

	if g.err != nil {
		return nil, g.err
	}
	return &api.Completion{Text: g.text, Model: g.model, TotalTokens: g.tokens}, nil
}

func (g *fakeGenerator) request() api.ChatRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// blockingGenerator signals started and waits for release before
// answering.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGenerator) Generate(ctx context.Context, req api.ChatRequest) (*api.Completion, error) {
	close(g.started)
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &api.Completion{Text: "done", Model: "blocking"}, nil
}

type fakeRenderer struct {
	fail map[int]bool
}

func (r fakeRenderer) Render(ctx context.Context, document string, page, dpi int) (string, error) {
	if r.fail[page] {
		return "", errors.New("rasterizer crashed")
	}
	return fmt.Sprintf("static/page_images/%s_page_%d.png", document, page), nil
}

func widgetPages() []api.Page {
	return []api.Page{
		api.NewPage(1, "Install the widget. Step one: unbox. Step two: connect."),
		api.NewPage(2, "Mount the bracket on the wall using four screws."),
		api.NewPage(3, "Connect the power cable to the rear socket."),
		api.NewPage(4, "Unbox the remote control and insert two batteries."),
		api.NewPage(5, "Warranty information and support contacts."),
	}
}
