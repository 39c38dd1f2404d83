package transport

import (
	"context"
	"fmt"
	"sync"
)

// MemoryTransport keeps streams, traces and corpus events in process.
// It serves single process setups and tests.
type MemoryTransport struct {
	mu       sync.Mutex
	streams  map[string]*memoryStream
	traces   map[string]RequestTrace
	watchers map[int]chan CorpusEvent
	nextID   int
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		streams:  make(map[string]*memoryStream),
		traces:   make(map[string]RequestTrace),
		watchers: make(map[int]chan CorpusEvent),
	}
}

func (t *MemoryTransport) GetMessageStream(id string) (MessageStream, error) {
	if len(id) == 0 {
		return nil, ErrInvalidStream
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.streams[id]
	if !ok {
		s = &memoryStream{id: id, notify: make(chan struct{})}
		t.streams[id] = s
	}
	// every caller reads from the start, like a fresh redis cursor
	return &memoryCursor{stream: s}, nil
}

func (t *MemoryTransport) SetTrace(_ context.Context, trace *RequestTrace) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.traces[trace.ID] = *trace
	return nil
}

func (t *MemoryTransport) GetTrace(_ context.Context, traceId string) (*RequestTrace, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	trace, ok := t.traces[traceId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, traceId)
	}
	return &trace, nil
}

func (t *MemoryTransport) PublishCorpus(ctx context.Context, ev CorpusEvent) error {
	t.mu.Lock()
	watchers := make([]chan CorpusEvent, 0, len(t.watchers))
	for _, ch := range t.watchers {
		watchers = append(watchers, ch)
	}
	t.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (t *MemoryTransport) WatchCorpus(ctx context.Context, fn func(CorpusEvent) error) error {
	ch := make(chan CorpusEvent, 16)

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.watchers[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.watchers, id)
		t.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-ch:
			if err := fn(ev); err != nil {
				return err
			}
		}
	}
}

type memoryStream struct {
	id string

	mu       sync.Mutex
	messages []MessageStreamPayload
	notify   chan struct{}
}

func (s *memoryStream) append(p MessageStreamPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, p)
	close(s.notify)
	s.notify = make(chan struct{})
}

// at returns the message at index i, or a channel closed on the next
// append when it does not exist yet.
func (s *memoryStream) at(i int) (*MessageStreamPayload, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < len(s.messages) {
		p := s.messages[i]
		return &p, nil
	}
	return nil, s.notify
}

type memoryCursor struct {
	stream *memoryStream
	next   int
}

func (c *memoryCursor) Send(_ context.Context, payload MessageStreamPayload) error {
	c.stream.append(payload)
	return nil
}

func (c *memoryCursor) Recv(ctx context.Context) (*MessageStreamPayload, error) {
	for {
		p, wait := c.stream.at(c.next)
		if p != nil {
			c.next++
			return p, nil
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *memoryCursor) GetID() string {
	return c.stream.id
}
