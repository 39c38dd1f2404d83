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

package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/provider"
	"github.com/alan-mat/pdfqa/internal/rag"
	"github.com/alan-mat/pdfqa/internal/storage"
	"github.com/alan-mat/pdfqa/internal/transport"
	"github.com/hibiken/asynq"
)

type SnapshotSaver interface {
	Save(ctx context.Context, snap *storage.Snapshot) error
}

type TaskHandler struct {
	transport transport.Transport
	extractor provider.Extractor
	engine    *rag.Engine
	store     SnapshotSaver
}

func NewTaskHandler(t transport.Transport, extractor provider.Extractor, engine *rag.Engine, store SnapshotSaver) *TaskHandler {
	return &TaskHandler{
		transport: t,
		extractor: extractor,
		engine:    engine,
		store:     store,
	}
}

func (h TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	switch t.Type() {
	case TypeBuildCorpus:
		var p buildCorpusPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("malformed build payload: %v (%w)", err, asynq.SkipRetry)
		}
		return h.buildCorpus(ctx, p)
	default:
		return fmt.Errorf("unrecognized task type (%w)", asynq.SkipRetry)
	}
}

func (h TaskHandler) buildCorpus(ctx context.Context, p buildCorpusPayload) error {
	if p.Source == "" {
		p.Source = filepath.Base(p.Path)
	}
	slog.Info("received build task", "id", p.TraceID, "path", p.Path, "chunk_size", p.ChunkSize, "chunk_overlap", p.ChunkOverlap)

	ms, err := h.transport.GetMessageStream(p.TraceID)
	if err != nil {
		slog.Error("failed to initialize message stream", "err", err)
		return fmt.Errorf("failed to initialize message stream: %v (%w)", err, asynq.SkipRetry)
	}
	rep := transport.NewReporter(ms)

	trace := &transport.RequestTrace{
		ID:        p.TraceID,
		Status:    transport.TraceStatusRunning,
		StartedAt: time.Now().UnixNano(),
		Document:  p.Path,
	}
	h.setTrace(ctx, trace)

	rep.Progress(ctx, "extracting pages from %s", p.Source)
	pages, err := h.extractor.Extract(ctx, p.Path)
	if err != nil {
		return h.fail(ctx, trace, rep, "page extraction failed", err)
	}
	rep.Progress(ctx, "extracted %d pages", len(pages))

	opts := []rag.BuildOption{
		rag.WithSource(p.Source),
		rag.WithDocumentPath(p.Path),
		rag.WithTotalPages(len(pages)),
	}
	if h.store != nil {
		opts = append(opts, rag.WithCommit(h.save))
	}

	corpus, err := h.engine.BuildCorpus(ctx, pages, p.ChunkSize, p.ChunkOverlap, opts...)
	if err != nil {
		return h.fail(ctx, trace, rep, "corpus build failed", err)
	}
	rep.Progress(ctx, "indexed %d chunks", corpus.Len())

	err = h.transport.PublishCorpus(ctx, transport.CorpusEvent{
		CorpusID: corpus.ID,
		Source:   corpus.Source,
		BuiltAt:  corpus.BuiltAt.Unix(),
	})
	if err != nil {
		slog.Warn("failed to publish corpus event", "id", corpus.ID, "err", err)
	}

	if err := rep.Done(ctx, corpus.ID); err != nil {
		slog.Warn("failed to write DONE message to stream", "id", p.TraceID)
	}

	trace.CompletedAt = time.Now().UnixNano()
	trace.Status = transport.TraceStatusCompleted
	trace.CorpusID = corpus.ID
	h.setTrace(ctx, trace)

	slog.Info("build task finished", "id", p.TraceID, "corpus", corpus.ID, "chunks", corpus.Len())
	return nil
}

// save persists the corpus before it goes live, so a corpus that is
// served has always been stored.
func (h TaskHandler) save(ctx context.Context, c *rag.Corpus) error {
	return h.store.Save(ctx, c.Snapshot())
}

// fail records the failure and decides whether asynq should retry.
// Only collaborator failures are worth retrying.
func (h TaskHandler) fail(ctx context.Context, trace *transport.RequestTrace, rep *transport.Reporter, msg string, err error) error {
	slog.Error(msg, "id", trace.ID, "err", err)
	rep.Fail(ctx, fmt.Sprintf("%s: %v", msg, err))

	trace.CompletedAt = time.Now().UnixNano()
	trace.Status = transport.TraceStatusFailed
	trace.Error = err.Error()
	h.setTrace(ctx, trace)

	if errors.Is(err, api.ErrDependency) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%s: %v (%w)", msg, err, asynq.SkipRetry)
}

func (h TaskHandler) setTrace(ctx context.Context, trace *transport.RequestTrace) {
	if err := h.transport.SetTrace(ctx, trace); err != nil {
		slog.Error("failed to set trace", "id", trace.ID, "err", err)
	}
}
