package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/alan-mat/pdfqa/internal/pdf"
	"github.com/alan-mat/pdfqa/internal/provider"
	"github.com/alan-mat/pdfqa/internal/rag"
	"github.com/alan-mat/pdfqa/internal/storage"
	"github.com/alan-mat/pdfqa/internal/tasks"
	"github.com/alan-mat/pdfqa/internal/transport"
	"github.com/alan-mat/pdfqa/internal/vector"
	"github.com/alan-mat/pdfqa/server"
	"github.com/alan-mat/pdfqa/worker"
)

func (c config) providerSettings() provider.Settings {
	return provider.Settings{
		ChatModel:      c.Providers.ChatModel,
		EmbeddingModel: c.Providers.EmbeddingModel,
		Endpoint:       c.Providers.Endpoint,
		Dimensions:     c.Providers.Dimensions,
	}
}

// embedderName identifies stored vectors, so a model change forces a
// re-embed on restore.
func (c config) embedderName() string {
	if c.Providers.EmbeddingModel == "" {
		return c.Providers.Embedder
	}
	return c.Providers.Embedder + "/" + c.Providers.EmbeddingModel
}

// newEngine wires the configured providers and vector store. The
// returned func closes the engine and the store.
func newEngine(conf *config) (*rag.Engine, func(), error) {
	settings := conf.providerSettings()

	emb, err := provider.NewEmbedder(conf.Providers.Embedder, settings)
	if err != nil {
		return nil, nil, err
	}

	vs, err := vector.NewStore(conf.VectorStore.Type, vector.Config{
		Host:   conf.VectorStore.Qdrant.Host,
		Port:   conf.VectorStore.Qdrant.Port,
		APIKey: os.Getenv("QDRANT_API_KEY"),
		UseTLS: conf.VectorStore.Qdrant.UseTLS,
	})
	if err != nil {
		return nil, nil, err
	}

	opts := []rag.Option{
		rag.WithEmbedder(conf.embedderName(), emb),
		rag.WithVectorStore(vs),
		rag.WithRateLimit(conf.Embedding.RequestsPerSecond, conf.Embedding.Burst),
		rag.WithBatchSize(conf.Embedding.BatchSize),
		rag.WithDefaultK(conf.Retrieval.K),
		rag.WithTemperature(conf.Generation.Temperature),
		rag.WithMaxTokens(conf.Generation.MaxTokens),
	}
	if conf.Generation.SystemPrompt != "" {
		opts = append(opts, rag.WithDefaultSystemPrompt(conf.Generation.SystemPrompt))
	}
	if conf.Providers.Generator != "" {
		gen, err := provider.NewGenerator(conf.Providers.Generator, settings)
		if err != nil {
			vs.Close()
			return nil, nil, err
		}
		model := conf.Providers.ChatModel
		if model == "" {
			model = provider.DefaultChatModel(conf.Providers.Generator)
		}
		opts = append(opts, rag.WithGenerator(gen), rag.WithChatModel(model))
	}

	engine, err := rag.NewEngine(opts...)
	if err != nil {
		vs.Close()
		return nil, nil, err
	}
	return engine, func() {
		engine.Close()
		vs.Close()
	}, nil
}

func newRedis(conf *config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Transport.Addr,
		Username: conf.Transport.Username,
		Password: conf.Transport.Password,
		DB:       conf.Transport.DB,
	})
}

func runServe(ctx context.Context, conf *config) error {
	engine, closeEngine, err := newEngine(conf)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer closeEngine()

	store, err := storage.NewStore(conf.Storage.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	extractor, err := provider.NewExtractor(conf.Providers.Extractor, conf.providerSettings())
	if err != nil {
		return err
	}

	rdb := newRedis(conf)
	defer rdb.Close()

	t := transport.NewRedisTransport(rdb)

	client := asynq.NewClientFromRedisClient(rdb)
	defer client.Close()

	w := worker.New(rdb, tasks.NewTaskHandler(t, extractor, engine, store), conf.Worker.Concurrency)

	srv := server.New(
		server.ServerConfig{
			ListenHost: conf.Server.ListenHost,
			ListenPort: conf.Server.ListenPort,
			DPI:        conf.Render.DPI,
		},
		engine, t, client,
		server.WithRenderer(pdf.NewRenderer(
			pdf.WithOutputDir(conf.Render.OutputDir),
			pdf.WithDefaultDPI(conf.Render.DPI),
		)),
		server.WithSnapshots(store),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx)
	})
	g.Go(func() error {
		return w.Run(ctx)
	})
	return g.Wait()
}

func runWork(ctx context.Context, conf *config) error {
	engine, closeEngine, err := newEngine(conf)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer closeEngine()

	store, err := storage.NewStore(conf.Storage.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	extractor, err := provider.NewExtractor(conf.Providers.Extractor, conf.providerSettings())
	if err != nil {
		return err
	}

	rdb := newRedis(conf)
	defer rdb.Close()

	t := transport.NewRedisTransport(rdb)
	w := worker.New(rdb, tasks.NewTaskHandler(t, extractor, engine, store), conf.Worker.Concurrency)
	return w.Run(ctx)
}

// runIndex builds a corpus in-process through the same task handler the
// worker runs, printing its progress messages.
func runIndex(ctx context.Context, conf *config, cmd *indexCmd) error {
	chunkSize, chunkOverlap := conf.Chunking.Size, conf.Chunking.Overlap
	if cmd.ChunkSize != nil {
		chunkSize = *cmd.ChunkSize
	}
	if cmd.ChunkOverlap != nil {
		chunkOverlap = *cmd.ChunkOverlap
	}

	path, err := filepath.Abs(cmd.Path)
	if err != nil {
		return err
	}

	engine, closeEngine, err := newEngine(conf)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer closeEngine()

	store, err := storage.NewStore(conf.Storage.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	extractor, err := provider.NewExtractor(conf.Providers.Extractor, conf.providerSettings())
	if err != nil {
		return err
	}

	task, traceID, err := tasks.NewBuildCorpusTask(tasks.BuildCorpusRequest{
		Path:         path,
		ChunkSize:    chunkSize,
		ChunkOverlap: &chunkOverlap,
	})
	if err != nil {
		return err
	}

	t := transport.NewMemoryTransport()
	ms, err := t.GetMessageStream(traceID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tasks.NewTaskHandler(t, extractor, engine, store).ProcessTask(gctx, task)
	})
	g.Go(func() error {
		return transport.Follow(gctx, ms, func(p *transport.MessageStreamPayload) error {
			fmt.Printf("[%s] %s\n", p.Status, p.Content)
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}

	corpus := engine.Current()
	fmt.Printf("indexed %s: %d pages, %d chunks (corpus %s)\n", corpus.Source, corpus.TotalPages, corpus.Len(), corpus.ID)
	return nil
}

func runCorpora(ctx context.Context, conf *config) error {
	store, err := storage.NewStore(conf.Storage.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	infos, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no stored corpora")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tPAGES\tCHUNKS\tBUILT")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", info.CorpusID, info.Source, info.TotalPages, info.ChunkCount,
			time.Unix(info.BuiltAt, 0).Format(time.DateTime))
	}
	return tw.Flush()
}

func runRemove(ctx context.Context, conf *config, cmd *rmCmd) error {
	store, err := storage.NewStore(conf.Storage.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, id := range cmd.IDs {
		if err := store.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Printf("removed corpus %s\n", id)
	}
	return nil
}

func runLoad(ctx context.Context, cmd *loadCmd) error {
	client, err := server.Dial(cmd.target())
	if err != nil {
		return err
	}
	defer client.Close()

	return client.LoadDocument(ctx, &server.LoadDocumentRequest{
		Path:         cmd.Path,
		ChunkSize:    cmd.ChunkSize,
		ChunkOverlap: cmd.ChunkOverlap,
	}, func(p *server.BuildProgress) error {
		fmt.Printf("[%s] %s\n", p.Status, p.Content)
		return nil
	})
}

func runAsk(ctx context.Context, cmd *askCmd) error {
	client, err := server.Dial(cmd.target())
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Query(ctx, &server.QueryRequest{
		Question:     cmd.Question,
		K:            cmd.K,
		SystemPrompt: cmd.SystemPrompt,
	})
	if err != nil {
		return err
	}

	fmt.Println(resp.Result.Answer)
	fmt.Printf("\nmodel %s, %d tokens, pages %v\n", resp.Result.Model, resp.Result.TotalTokens, resp.Result.ReferencedPages)

	if len(resp.Citations.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range resp.Citations.Sources {
			fmt.Printf("  page %d (%.3f): %s\n", s.PageNumber, s.Score, s.Preview)
		}
	}
	if len(resp.Citations.Images) > 0 {
		fmt.Println("\nPage images:")
		for _, img := range resp.Citations.Images {
			fmt.Printf("  page %d: %s\n", img.PageNumber, img.Path)
		}
	}
	return nil
}
