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

// Package rag answers questions about a single loaded PDF. It chunks the
// extracted pages, indexes the chunks, retrieves the closest ones for a
// question, asks a generator for a grounded answer and keeps the page of
// every retrieved chunk so the answer can be cited.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/chunker"
	"github.com/alan-mat/pdfqa/internal/provider"
	"github.com/alan-mat/pdfqa/internal/storage"
	"github.com/alan-mat/pdfqa/internal/vector"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultK           = 3
	DefaultChatModel   = "gpt-4o-mini"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1500
	DefaultBatchSize   = 64

	collectionPrefix = "pdfqa_"
	dropTimeout      = 30 * time.Second
)

var ErrNoEmbedder = errors.New("engine requires an embedder")

// Engine holds the current corpus behind an atomic reference. Builds are
// serialised and replace the corpus wholesale, so a query always runs
// against one consistent corpus even while a new one is being built.
type Engine struct {
	current atomic.Pointer[Corpus]
	buildMu sync.Mutex

	store        vector.Store
	embedder     provider.Embedder
	embedderName string
	generator    provider.Generator
	limiter      *rate.Limiter
	batchSize    int

	k            int
	chatModel    string
	temperature  float32
	maxTokens    int
	systemPrompt string
}

type Option func(*Engine)

func WithEmbedder(name string, e provider.Embedder) Option {
	return func(en *Engine) {
		en.embedder = e
		en.embedderName = name
	}
}

func WithGenerator(g provider.Generator) Option {
	return func(en *Engine) {
		en.generator = g
	}
}

func WithVectorStore(s vector.Store) Option {
	return func(en *Engine) {
		en.store = s
	}
}

// WithRateLimit paces embedding batches to rps requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(en *Engine) {
		if rps > 0 {
			en.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

func WithBatchSize(n int) Option {
	return func(en *Engine) {
		if n > 0 {
			en.batchSize = n
		}
	}
}

func WithDefaultK(k int) Option {
	return func(en *Engine) {
		if k > 0 {
			en.k = k
		}
	}
}

func WithChatModel(model string) Option {
	return func(en *Engine) {
		if model != "" {
			en.chatModel = model
		}
	}
}

func WithTemperature(t float32) Option {
	return func(en *Engine) {
		en.temperature = t
	}
}

func WithMaxTokens(n int) Option {
	return func(en *Engine) {
		if n > 0 {
			en.maxTokens = n
		}
	}
}

// WithDefaultSystemPrompt replaces DefaultSystemPrompt for queries that
// do not pass their own.
func WithDefaultSystemPrompt(prompt string) Option {
	return func(en *Engine) {
		en.systemPrompt = prompt
	}
}

func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		store:        vector.NewMemoryStore(),
		limiter:      rate.NewLimiter(rate.Inf, 1),
		batchSize:    DefaultBatchSize,
		k:            DefaultK,
		chatModel:    DefaultChatModel,
		temperature:  DefaultTemperature,
		maxTokens:    DefaultMaxTokens,
		systemPrompt: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.embedder == nil {
		return nil, ErrNoEmbedder
	}
	return e, nil
}

// Current returns the active corpus or nil.
func (e *Engine) Current() *Corpus {
	return e.current.Load()
}

func (e *Engine) Ready() bool {
	return e.current.Load() != nil
}

func (e *Engine) DefaultK() int {
	return e.k
}

type buildOptions struct {
	source     string
	path       string
	totalPages int
	commit     func(context.Context, *Corpus) error
}

type BuildOption func(*buildOptions)

// WithSource names the document chunks are attributed to.
func WithSource(source string) BuildOption {
	return func(o *buildOptions) {
		o.source = source
	}
}

func WithDocumentPath(path string) BuildOption {
	return func(o *buildOptions) {
		o.path = path
	}
}

// WithTotalPages records the physical page count when pages holds only
// part of the document.
func WithTotalPages(n int) BuildOption {
	return func(o *buildOptions) {
		o.totalPages = n
	}
}

// WithCommit runs fn on the indexed corpus before it becomes current. An
// error from fn aborts the build and leaves the previous corpus in place.
func WithCommit(fn func(ctx context.Context, c *Corpus) error) BuildOption {
	return func(o *buildOptions) {
		o.commit = fn
	}
}

// BuildCorpus chunks pages, embeds every chunk, indexes the vectors in a
// fresh collection and makes the result the current corpus.
func (e *Engine) BuildCorpus(ctx context.Context, pages []api.Page, chunkSize, chunkOverlap int, opts ...BuildOption) (*Corpus, error) {
	bo := buildOptions{}
	for _, opt := range opts {
		opt(&bo)
	}
	if bo.totalPages == 0 && len(pages) > 0 {
		bo.totalPages = pages[len(pages)-1].Number
	}

	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	start := time.Now()
	chunks, err := chunker.Chunk(pages, bo.source, chunkSize, chunkOverlap)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, api.EmptyInputError{Field: "chunks"}
	}
	slog.Info("chunked document", "source", bo.source, "pages", len(pages), "chunks", len(chunks))

	emb, err := e.corpusEmbedder(api.Texts(chunks))
	if err != nil {
		return nil, err
	}
	vectors, err := e.embedChunks(ctx, emb, bo.source, api.Texts(chunks))
	if err != nil {
		return nil, err
	}

	c := &Corpus{
		ID:           uuid.NewString(),
		Source:       bo.source,
		Path:         bo.path,
		TotalPages:   bo.totalPages,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		BuiltAt:      time.Now(),
		chunks:       chunks,
		vectors:      vectors,
		embedder:     emb,
		embedName:    e.embedderName,
	}
	if err := e.index(ctx, c); err != nil {
		return nil, err
	}
	if bo.commit != nil {
		if err := bo.commit(ctx, c); err != nil {
			e.dropCollection(c.collection)
			return nil, fmt.Errorf("failed to commit corpus: %w", err)
		}
	}

	e.swap(c)
	slog.Info("built corpus", "id", c.ID, "source", c.Source, "chunks", c.Len(), "took", time.Since(start))
	return c, nil
}

// Restore makes a persisted corpus current. Stored vectors are reused
// when they came from the configured embedder, otherwise the chunks are
// embedded again.
func (e *Engine) Restore(ctx context.Context, snap *storage.Snapshot) (*Corpus, error) {
	if len(snap.Chunks) == 0 {
		return nil, api.EmptyInputError{Field: "chunks"}
	}

	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	texts := api.Texts(snap.Chunks)
	emb, err := e.corpusEmbedder(texts)
	if err != nil {
		return nil, err
	}

	vectors := snap.Vectors
	if len(vectors) != len(snap.Chunks) || snap.Embedder != e.embedderName {
		slog.Info("re-embedding restored corpus", "id", snap.CorpusID, "stored_embedder", snap.Embedder, "embedder", e.embedderName)
		vectors, err = e.embedChunks(ctx, emb, snap.Source, texts)
		if err != nil {
			return nil, err
		}
	}

	c := &Corpus{
		ID:           snap.CorpusID,
		Source:       snap.Source,
		Path:         snap.Path,
		TotalPages:   snap.TotalPages,
		ChunkSize:    snap.ChunkSize,
		ChunkOverlap: snap.ChunkOverlap,
		BuiltAt:      snap.BuiltAt,
		chunks:       snap.Chunks,
		vectors:      vectors,
		embedder:     emb,
		embedName:    e.embedderName,
	}
	if err := e.index(ctx, c); err != nil {
		return nil, err
	}

	e.swap(c)
	slog.Info("restored corpus", "id", c.ID, "source", c.Source, "chunks", c.Len())
	return c, nil
}

type searchOptions struct {
	page int
}

type SearchOption func(*searchOptions)

// OnPage restricts a search to chunks from one page.
func OnPage(page int) SearchOption {
	return func(o *searchOptions) {
		o.page = page
	}
}

// Search returns at most k chunks closest to query, best first. Scores
// are cosine similarities as reported by the index. A k below 1 selects
// the engine default.
func (e *Engine) Search(ctx context.Context, query string, k int, opts ...SearchOption) ([]api.SearchResult, error) {
	so := searchOptions{}
	for _, opt := range opts {
		opt(&so)
	}

	if strings.TrimSpace(query) == "" {
		return nil, api.EmptyInputError{Field: "query"}
	}

	c, err := e.acquire("search")
	if err != nil {
		return nil, err
	}
	defer c.release()

	var filters []vector.QueryParamsOption
	if so.page != 0 {
		if so.page < 1 || so.page > c.TotalPages {
			return nil, api.InvalidPageError{Page: so.page, Total: c.TotalPages}
		}
		filters = append(filters, vector.WithFilter(vector.PageFilter(so.page)))
	}

	return e.search(ctx, c, query, k, filters...)
}

type queryOptions struct {
	systemPrompt string
}

type QueryOption func(*queryOptions)

// WithSystemPrompt overrides the system prompt for one query. Section
// parsing may then find no sections.
func WithSystemPrompt(prompt string) QueryOption {
	return func(o *queryOptions) {
		o.systemPrompt = prompt
	}
}

// Query retrieves k chunks for question, generates an answer grounded in
// them and reports the pages those chunks came from.
func (e *Engine) Query(ctx context.Context, question string, k int, opts ...QueryOption) (*api.AnswerResult, error) {
	qo := queryOptions{systemPrompt: e.systemPrompt}
	for _, opt := range opts {
		opt(&qo)
	}

	if strings.TrimSpace(question) == "" {
		return nil, api.EmptyInputError{Field: "question"}
	}
	if e.generator == nil {
		return nil, api.DependencyError{Dependency: "generator", Op: "generate", Cause: errors.New("no generator configured")}
	}

	c, err := e.acquire("query")
	if err != nil {
		return nil, err
	}
	defer c.release()

	results, err := e.search(ctx, c, question, k)
	if err != nil {
		return nil, err
	}

	prompt, err := AssemblePrompt(question, results, qo.systemPrompt)
	if err != nil {
		return nil, err
	}

	completion, err := e.generator.Generate(ctx, api.ChatRequest{
		Query:        prompt.User,
		SystemPrompt: prompt.System,
		ModelName:    e.chatModel,
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
	})
	if err != nil {
		return nil, api.DependencyError{Dependency: "generator", Op: "generate", Cause: err}
	}

	model := completion.Model
	if model == "" {
		model = e.chatModel
	}

	slog.Info("answered question", "corpus", c.ID, "results", len(results), "model", model, "tokens", completion.TotalTokens)
	return &api.AnswerResult{
		Question:        question,
		Answer:          completion.Text,
		ReferencedPages: DeriveReferencedPages(results),
		SourceChunks:    results,
		Model:           model,
		TotalTokens:     completion.TotalTokens,
		CorpusID:        c.ID,
		Document:        c.Path,
	}, nil
}

func (e *Engine) DocumentInfo() (api.DocumentInfo, error) {
	c := e.current.Load()
	if c == nil {
		return api.DocumentInfo{}, api.NotReadyError{Op: "document info"}
	}
	return c.Info(), nil
}

// Close drops the index collection of the current corpus.
func (e *Engine) Close() error {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	if c := e.current.Swap(nil); c != nil {
		c.retire(func() { e.dropCollection(c.collection) })
	}
	return nil
}

func (e *Engine) acquire(op string) (*Corpus, error) {
	for {
		c := e.current.Load()
		if c == nil {
			return nil, api.NotReadyError{Op: op}
		}
		if c.acquire() {
			return c, nil
		}
	}
}

func (e *Engine) search(ctx context.Context, c *Corpus, query string, k int, opts ...vector.QueryParamsOption) ([]api.SearchResult, error) {
	if k < 1 {
		k = e.k
	}

	vec, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, api.DependencyError{Dependency: "embedder", Op: "embed query", Cause: err}
	}

	opts = append(opts, vector.WithLimit(uint(k)))
	points, err := e.store.Query(ctx, vector.NewQueryParams(c.collection, vec, opts...))
	if err != nil {
		return nil, api.DependencyError{Dependency: "vector index", Op: "query", Cause: err}
	}

	results := make([]api.SearchResult, 0, len(points))
	for _, p := range points {
		chunk, ok := c.Chunk(int(p.ID))
		if !ok {
			slog.Warn("index returned unknown chunk", "corpus", c.ID, "id", p.ID)
			continue
		}
		results = append(results, api.SearchResult{
			Chunk: chunk,
			Score: float64(p.Score),
		})
	}
	return results, nil
}

// corpusEmbedder fits the configured embedder to texts when its vector
// space depends on the corpus.
func (e *Engine) corpusEmbedder(texts []string) (provider.Embedder, error) {
	f, ok := e.embedder.(provider.Fitter)
	if !ok {
		return e.embedder, nil
	}
	emb, err := f.Fit(texts)
	if err != nil {
		return nil, api.DependencyError{Dependency: "embedder", Op: "fit", Cause: err}
	}
	return emb, nil
}

func (e *Engine) embedChunks(ctx context.Context, emb provider.Embedder, title string, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		res, err := emb.EmbedDocuments(ctx, []*api.EmbedDocumentRequest{{
			Title:  title,
			Chunks: texts[start:end],
		}})
		if err != nil {
			return nil, api.DependencyError{Dependency: "embedder", Op: "embed documents", Cause: err}
		}
		if len(res) != 1 || len(res[0].Values) != end-start {
			return nil, api.DependencyError{
				Dependency: "embedder",
				Op:         "embed documents",
				Cause:      fmt.Errorf("expected %d vectors, got %d", end-start, countVectors(res)),
			}
		}
		vectors = append(vectors, res[0].Values...)
		slog.Debug("embedded batch", "from", start, "to", end, "total", len(texts))
	}

	dims := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dims {
			return nil, api.DependencyError{
				Dependency: "embedder",
				Op:         "embed documents",
				Cause:      fmt.Errorf("vector %d has %d dimensions, expected %d", i, len(v), dims),
			}
		}
	}
	return vectors, nil
}

func countVectors(res []*api.DocumentEmbedding) int {
	n := 0
	for _, r := range res {
		n += len(r.Values)
	}
	return n
}

func (e *Engine) index(ctx context.Context, c *Corpus) error {
	c.collection = collectionPrefix + uuid.NewString()

	points, err := vector.CreatePoints(c.chunks, c.vectors)
	if err != nil {
		return err
	}

	err = e.store.CreateCollection(ctx, vector.Collection{
		Name:       c.collection,
		Dimensions: uint(len(c.vectors[0])),
	})
	if err != nil {
		return api.DependencyError{Dependency: "vector index", Op: "create collection", Cause: err}
	}

	if err := e.store.Upsert(ctx, c.collection, points); err != nil {
		e.dropCollection(c.collection)
		return api.DependencyError{Dependency: "vector index", Op: "upsert", Cause: err}
	}
	return nil
}

// swap publishes c and retires the previous corpus. Its collection is
// dropped once the last request pinned to it finishes.
func (e *Engine) swap(c *Corpus) {
	old := e.current.Swap(c)
	if old != nil {
		old.retire(func() { e.dropCollection(old.collection) })
	}
}

func (e *Engine) dropCollection(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
	defer cancel()

	if err := e.store.DeleteCollection(ctx, name); err != nil {
		slog.Warn("failed to drop collection", "collection", name, "err", err)
		return
	}
	slog.Debug("dropped collection", "collection", name)
}
