package server

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/pdf"
	"github.com/alan-mat/pdfqa/internal/rag"
	"github.com/alan-mat/pdfqa/internal/tasks"
)

func (s *Server) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	slog.Debug("received query request", "question", req.Question, "k", req.K)

	dpi, err := s.dpi(req.DPI)
	if err != nil {
		return nil, statusError(err)
	}

	var opts []rag.QueryOption
	if req.SystemPrompt != "" {
		opts = append(opts, rag.WithSystemPrompt(req.SystemPrompt))
	}

	res, err := s.engine.Query(ctx, req.Question, req.K, opts...)
	if err != nil {
		return nil, statusError(err)
	}

	// Citations come from the corpus the answer was built on, even if a
	// rebuild has replaced it since.
	var renderer rag.PageRenderer
	if s.renderer != nil && res.Document != "" {
		renderer = s.renderer
	}

	return &QueryResponse{
		Result:    res,
		Sections:  rag.ParseSections(res.Answer),
		Citations: rag.NewResolver(renderer, res.Document, dpi).Resolve(ctx, res.ReferencedPages, res.SourceChunks),
	}, nil
}

func (s *Server) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	slog.Debug("received search request", "query", req.Query, "k", req.K, "page", req.Page)

	var opts []rag.SearchOption
	if req.Page != 0 {
		opts = append(opts, rag.OnPage(req.Page))
	}

	results, err := s.engine.Search(ctx, req.Query, req.K, opts...)
	if err != nil {
		return nil, statusError(err)
	}
	return &SearchResponse{Results: results}, nil
}

func (s *Server) LoadDocument(req *LoadDocumentRequest, stream grpc.ServerStreamingServer[BuildProgress]) error {
	slog.Debug("received load request", "path", req.Path, "chunk_size", req.ChunkSize)

	t, traceID, err := tasks.NewBuildCorpusTask(tasks.BuildCorpusRequest{
		Path:         req.Path,
		Source:       req.Source,
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
	})
	if err != nil {
		return statusError(err)
	}

	info, err := s.enqueuer.EnqueueContext(stream.Context(), t)
	if err != nil {
		slog.Error(err.Error())
		return status.Errorf(codes.Internal, "internal server error")
	}
	slog.Info("enqueued task successfully", "id", traceID, "queue", info.Queue)

	tstream, err := s.transport.GetMessageStream(traceID)
	if err != nil {
		slog.Error("failed to retrieve stream", "id", traceID)
		return status.Errorf(codes.Internal, "internal server error")
	}

	return handleMessageStream(stream.Context(), traceID, tstream, stream, buildProgress)
}

func (s *Server) WatchBuild(req *TraceRequest, stream grpc.ServerStreamingServer[BuildProgress]) error {
	trace, err := s.transport.GetTrace(stream.Context(), req.TraceID)
	if err != nil {
		return status.Errorf(codes.NotFound, "trace with given id does not exist")
	}

	tstream, err := s.transport.GetMessageStream(trace.ID)
	if err != nil {
		slog.Error("failed to retrieve stream", "id", trace.ID)
		return status.Errorf(codes.Internal, "internal server error")
	}

	return handleMessageStream(stream.Context(), trace.ID, tstream, stream, buildProgress)
}

func (s *Server) Trace(ctx context.Context, req *TraceRequest) (*TraceResponse, error) {
	trace, err := s.transport.GetTrace(ctx, req.TraceID)
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "trace with given id does not exist")
	}

	return &TraceResponse{
		TraceID:     trace.ID,
		Status:      trace.Status,
		StartedAt:   trace.StartedAt,
		CompletedAt: trace.CompletedAt,
		Document:    trace.Document,
		CorpusID:    trace.CorpusID,
		Error:       trace.Error,
	}, nil
}

func (s *Server) PageInfo(ctx context.Context, req *PageRequest) (*api.PageInfo, error) {
	document, err := s.document("page info")
	if err != nil {
		return nil, statusError(err)
	}

	info, err := pdf.Info(document, req.Page)
	if err != nil {
		return nil, statusError(err)
	}
	return &info, nil
}

func (s *Server) DocumentInfo(ctx context.Context, req *DocumentInfoRequest) (*api.DocumentInfo, error) {
	info, err := s.engine.DocumentInfo()
	if err != nil {
		return nil, statusError(err)
	}
	return &info, nil
}

func (s *Server) PageImage(ctx context.Context, req *PageImageRequest) (*PageImageResponse, error) {
	if s.renderer == nil {
		return nil, status.Errorf(codes.Unimplemented, "page rendering is disabled")
	}
	dpi, err := s.dpi(req.DPI)
	if err != nil {
		return nil, statusError(err)
	}
	document, err := s.document("page image")
	if err != nil {
		return nil, statusError(err)
	}

	png, err := s.renderer.RenderPNG(ctx, document, req.Page, dpi)
	if err != nil {
		return nil, statusError(err)
	}
	return &PageImageResponse{PageNumber: req.Page, PNG: png}, nil
}

// document returns the path of the current corpus' document.
func (s *Server) document(op string) (string, error) {
	c := s.engine.Current()
	if c == nil {
		return "", api.NotReadyError{Op: op}
	}
	if c.Path == "" {
		return "", status.Errorf(codes.FailedPrecondition, "current corpus has no document path")
	}
	return c.Path, nil
}

func (s *Server) dpi(requested int) (int, error) {
	switch {
	case requested <= 0:
		return s.config.DPI, nil
	case requested > pdf.MaxDPI:
		return 0, fmt.Errorf("%w: got %d", pdf.ErrInvalidDPI, requested)
	}
	return requested, nil
}
