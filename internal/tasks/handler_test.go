package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/rag"
	"github.com/alan-mat/pdfqa/internal/storage"
	"github.com/alan-mat/pdfqa/internal/tasks"
	"github.com/alan-mat/pdfqa/internal/transport"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lengthEmbedder struct {
	err error
}

func (e lengthEmbedder) vec(s string) []float32 {
	return []float32{float32(len(s)), float32(strings.Count(s, " ")), 1}
}

func (e lengthEmbedder) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	return e.vec(q), nil
}

func (e lengthEmbedder) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([]*api.DocumentEmbedding, 0, len(docs))
	for _, d := range docs {
		values := make([][]float32, 0, len(d.Chunks))
		for _, c := range d.Chunks {
			values = append(values, e.vec(c))
		}
		out = append(out, &api.DocumentEmbedding{Title: d.Title, Chunks: d.Chunks, Values: values})
	}
	return out, nil
}

func (e lengthEmbedder) GetDimensions() uint { return 3 }

type staticExtractor struct {
	pages []api.Page
	err   error
}

func (x staticExtractor) Extract(ctx context.Context, path string) ([]api.Page, error) {
	return x.pages, x.err
}

type fixture struct {
	transport *transport.MemoryTransport
	engine    *rag.Engine
	store     *storage.Store
}

func newFixture(t *testing.T, embedErr error) fixture {
	t.Helper()

	engine, err := rag.NewEngine(rag.WithEmbedder("length", lengthEmbedder{err: embedErr}))
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return fixture{
		transport: transport.NewMemoryTransport(),
		engine:    engine,
		store:     store,
	}
}

func messages(t *testing.T, tr transport.Transport, id string) []transport.MessageStreamPayload {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ms, err := tr.GetMessageStream(id)
	require.NoError(t, err)

	var out []transport.MessageStreamPayload
	require.NoError(t, transport.Follow(ctx, ms, func(p *transport.MessageStreamPayload) error {
		out = append(out, *p)
		return nil
	}))
	return out
}

func TestBuildCorpusTask(t *testing.T) {
	f := newFixture(t, nil)
	pages := []api.Page{
		api.NewPage(1, "Install the widget. Step one: unbox."),
		api.NewPage(2, ""),
		api.NewPage(3, "Connect the power cable."),
	}
	h := tasks.NewTaskHandler(f.transport, staticExtractor{pages: pages}, f.engine, f.store)

	task, traceID, err := tasks.NewBuildCorpusTask(tasks.BuildCorpusRequest{Path: "/uploads/widget.pdf"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan transport.CorpusEvent, 1)
	go f.transport.WatchCorpus(ctx, func(ev transport.CorpusEvent) error {
		events <- ev
		return nil
	})
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, h.ProcessTask(ctx, task))

	c := f.engine.Current()
	require.NotNil(t, c)
	assert.Equal(t, "widget.pdf", c.Source)
	assert.Equal(t, 3, c.TotalPages)
	assert.Equal(t, 2, c.Len())

	msgs := messages(t, f.transport, traceID)
	last := msgs[len(msgs)-1]
	assert.Equal(t, transport.StatusDone, last.Status)
	assert.Equal(t, c.ID, last.Content)

	trace, err := f.transport.GetTrace(ctx, traceID)
	require.NoError(t, err)
	assert.Equal(t, transport.TraceStatusCompleted, trace.Status)
	assert.Equal(t, c.ID, trace.CorpusID)

	snap, err := f.store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.ID, snap.CorpusID)
	assert.Len(t, snap.Vectors, 2)

	select {
	case ev := <-events:
		assert.Equal(t, c.ID, ev.CorpusID)
	case <-ctx.Done():
		t.Fatal("no corpus event published")
	}
}

func TestBuildCorpusTaskExtractionFailureSkipsRetry(t *testing.T) {
	f := newFixture(t, nil)
	h := tasks.NewTaskHandler(f.transport, staticExtractor{err: errors.New("not a pdf")}, f.engine, f.store)

	task, traceID, err := tasks.NewBuildCorpusTask(tasks.BuildCorpusRequest{Path: "notes.txt"})
	require.NoError(t, err)

	ctx := context.Background()
	err = h.ProcessTask(ctx, task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.False(t, f.engine.Ready())

	trace, err := f.transport.GetTrace(ctx, traceID)
	require.NoError(t, err)
	assert.Equal(t, transport.TraceStatusFailed, trace.Status)
	assert.Contains(t, trace.Error, "not a pdf")

	msgs := messages(t, f.transport, traceID)
	assert.Equal(t, transport.StatusErr, msgs[len(msgs)-1].Status)
}

func TestBuildCorpusTaskDependencyFailureRetries(t *testing.T) {
	f := newFixture(t, errors.New("rate limited"))
	pages := []api.Page{api.NewPage(1, "some text")}
	h := tasks.NewTaskHandler(f.transport, staticExtractor{pages: pages}, f.engine, nil)

	task, _, err := tasks.NewBuildCorpusTask(tasks.BuildCorpusRequest{Path: "a.pdf"})
	require.NoError(t, err)

	err = h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, api.ErrDependency)
}

type failingSaver struct{}

func (failingSaver) Save(ctx context.Context, snap *storage.Snapshot) error {
	return errors.New("disk full")
}

func TestBuildCorpusTaskSaveFailureKeepsCorpusOffline(t *testing.T) {
	f := newFixture(t, nil)
	pages := []api.Page{api.NewPage(1, "Install the widget.")}
	ctx := context.Background()

	previous, err := f.engine.BuildCorpus(ctx, pages, 1000, 200, rag.WithSource("previous.pdf"))
	require.NoError(t, err)

	h := tasks.NewTaskHandler(f.transport, staticExtractor{pages: pages}, f.engine, failingSaver{})
	task, traceID, err := tasks.NewBuildCorpusTask(tasks.BuildCorpusRequest{Path: "/uploads/widget.pdf"})
	require.NoError(t, err)

	err = h.ProcessTask(ctx, task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Same(t, previous, f.engine.Current())

	trace, err := f.transport.GetTrace(ctx, traceID)
	require.NoError(t, err)
	assert.Equal(t, transport.TraceStatusFailed, trace.Status)
	assert.Contains(t, trace.Error, "disk full")
}

func TestUnknownTaskType(t *testing.T) {
	f := newFixture(t, nil)
	h := tasks.NewTaskHandler(f.transport, staticExtractor{}, f.engine, nil)

	err := h.ProcessTask(context.Background(), asynq.NewTask("pdfqa:unknown", nil))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewBuildCorpusTask(t *testing.T) {
	_, _, err := tasks.NewBuildCorpusTask(tasks.BuildCorpusRequest{Path: " "})
	assert.ErrorIs(t, err, api.ErrEmptyInput)

	task, traceID, err := tasks.NewBuildCorpusTask(tasks.BuildCorpusRequest{Path: "a.pdf"})
	require.NoError(t, err)
	assert.NotEmpty(t, traceID)
	assert.Equal(t, tasks.TypeBuildCorpus, task.Type())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.EqualValues(t, 1000, payload["ChunkSize"])
	assert.EqualValues(t, 200, payload["ChunkOverlap"])
	assert.Equal(t, traceID, payload["TraceID"])

	task, _, err = tasks.NewBuildCorpusTask(tasks.BuildCorpusRequest{Path: "a.pdf", ChunkSize: 500})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.EqualValues(t, 500, payload["ChunkSize"])
	assert.EqualValues(t, 200, payload["ChunkOverlap"])

	task, _, err = tasks.NewBuildCorpusTask(tasks.BuildCorpusRequest{Path: "a.pdf", ChunkSize: 100})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.EqualValues(t, 20, payload["ChunkOverlap"])

	overlap := 0
	task, _, err = tasks.NewBuildCorpusTask(tasks.BuildCorpusRequest{Path: "a.pdf", ChunkOverlap: &overlap})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.EqualValues(t, 1000, payload["ChunkSize"])
	assert.EqualValues(t, 0, payload["ChunkOverlap"])
}
