package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/alan-mat/pdfqa/internal/pdf"
	"github.com/alan-mat/pdfqa/internal/rag"
	"github.com/alan-mat/pdfqa/internal/storage"
	"github.com/alan-mat/pdfqa/internal/transport"
)

type ServerConfig struct {
	ListenHost string
	ListenPort int

	// DPI is used for citation images when a request does not set one.
	DPI int
}

func DefaultConfig() ServerConfig {
	return ServerConfig{
		ListenPort: 50051,
		DPI:        pdf.DefaultDPI,
	}
}

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type PageRenderer interface {
	rag.PageRenderer
	RenderPNG(ctx context.Context, document string, page, dpi int) ([]byte, error)
}

type SnapshotLoader interface {
	Latest(ctx context.Context) (*storage.Snapshot, error)
	Load(ctx context.Context, id string) (*storage.Snapshot, error)
}

// Server implements PDFQAServer on top of one engine. Builds are
// enqueued as tasks and reach the engine either directly, when the
// worker shares it, or through corpus events and the snapshot store.
type Server struct {
	config ServerConfig

	engine    *rag.Engine
	transport transport.Transport
	enqueuer  Enqueuer
	renderer  PageRenderer
	snapshots SnapshotLoader

	health *health.Server
}

type Option func(*Server)

func WithRenderer(r PageRenderer) Option {
	return func(s *Server) {
		s.renderer = r
	}
}

func WithSnapshots(l SnapshotLoader) Option {
	return func(s *Server) {
		s.snapshots = l
	}
}

func New(config ServerConfig, engine *rag.Engine, t transport.Transport, enqueuer Enqueuer, opts ...Option) *Server {
	if config.DPI <= 0 {
		config.DPI = pdf.DefaultDPI
	}
	s := &Server{
		config:    config,
		engine:    engine,
		transport: t,
		enqueuer:  enqueuer,
		health:    health.NewServer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
	healthpb.RegisterHealthServer(gs, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

func (s *Server) Serve(ctx context.Context) error {
	lisAddr := fmt.Sprintf("%s:%d", s.config.ListenHost, s.config.ListenPort)
	lis, err := net.Listen("tcp", lisAddr)
	if err != nil {
		slog.Error("failed to start server", "err", err)
		return err
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener restores the latest stored corpus, then serves on lis
// and follows corpus events until ctx is done.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	if err := s.RestoreLatest(ctx); err != nil {
		slog.Warn("failed to restore latest corpus", "err", err)
	}

	grpcServer := NewGRPCServer()
	s.Register(grpcServer)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server starting", "listener", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("failed to serve", "err", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.watchCorpus(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.health.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RestoreLatest makes the newest stored corpus current. It is a no-op
// without a snapshot store or when nothing was stored yet.
func (s *Server) RestoreLatest(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	snap, err := s.snapshots.Latest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.engine.Restore(ctx, snap)
	return err
}

func (s *Server) watchCorpus(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	err := s.transport.WatchCorpus(ctx, func(ev transport.CorpusEvent) error {
		s.reload(ctx, ev)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		slog.Error("corpus watcher stopped", "err", err)
	}
}

func (s *Server) reload(ctx context.Context, ev transport.CorpusEvent) {
	if c := s.engine.Current(); c != nil && c.ID == ev.CorpusID {
		return
	}

	snap, err := s.snapshots.Load(ctx, ev.CorpusID)
	if err != nil {
		slog.Error("failed to load announced corpus", "id", ev.CorpusID, "err", err)
		return
	}
	if _, err := s.engine.Restore(ctx, snap); err != nil {
		slog.Error("failed to restore announced corpus", "id", ev.CorpusID, "err", err)
		return
	}
	slog.Info("reloaded corpus", "id", ev.CorpusID, "source", ev.Source)
}
