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

// Package transport carries build progress, build traces and corpus
// change events between the worker that builds a corpus and the servers
// that answer questions about it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	TraceExpiry = time.Hour * 24

	ErrTraceNotFound = errors.New("trace not found")
	ErrInvalidStream = errors.New("invalid stream ID")
)

const (
	StatusOK   = "OK"
	StatusDone = "DONE"
	StatusErr  = "ERR"
)

type Transport interface {
	GetMessageStream(id string) (MessageStream, error)
	SetTrace(ctx context.Context, trace *RequestTrace) error
	GetTrace(ctx context.Context, traceId string) (*RequestTrace, error)

	PublishCorpus(ctx context.Context, ev CorpusEvent) error
	// WatchCorpus calls fn for every corpus event published after the
	// call starts, until ctx is done or fn returns an error.
	WatchCorpus(ctx context.Context, fn func(CorpusEvent) error) error
}

type MessageStream interface {
	Send(ctx context.Context, payload MessageStreamPayload) error

	Recv(ctx context.Context) (*MessageStreamPayload, error)

	GetID() string
}

type MessageStreamPayload struct {
	ID     int         `json:"id"`
	Status string      `json:"status"`
	Type   MessageType `json:"type"`

	Content string `json:"content"`
}

func (p MessageStreamPayload) Terminal() bool {
	return p.Status == StatusDone || p.Status == StatusErr
}

type MessageType int

const (
	MessageTypeOther = iota
	MessageTypeProgress
	MessageTypeResult
)

type RequestTrace struct {
	ID          string `redis:"id"`
	Status      int    `redis:"status"`
	StartedAt   int64  `redis:"started_at"`
	CompletedAt int64  `redis:"completed_at"`
	Document    string `redis:"document"`
	CorpusID    string `redis:"corpus_id"`
	Error       string `redis:"error"`
}

type TraceStatus int

const (
	TraceStatusUnspecified = iota
	TraceStatusRunning
	TraceStatusCompleted
	TraceStatusFailed
)

// CorpusEvent announces that a new corpus was persisted and should be
// loaded by every server.
type CorpusEvent struct {
	CorpusID string `json:"corpus_id"`
	Source   string `json:"source"`
	BuiltAt  int64  `json:"built_at"`
}

// Reporter numbers the messages it writes to a stream.
type Reporter struct {
	ms    MessageStream
	msgId int
}

func NewReporter(ms MessageStream) *Reporter {
	return &Reporter{ms: ms}
}

func (r *Reporter) Progress(ctx context.Context, format string, args ...any) error {
	return r.send(ctx, MessageTypeProgress, StatusOK, fmt.Sprintf(format, args...))
}

func (r *Reporter) Done(ctx context.Context, content string) error {
	return r.send(ctx, MessageTypeResult, StatusDone, content)
}

func (r *Reporter) Fail(ctx context.Context, content string) error {
	return r.send(ctx, MessageTypeOther, StatusErr, content)
}

func (r *Reporter) send(ctx context.Context, typ MessageType, status, content string) error {
	err := r.ms.Send(ctx, MessageStreamPayload{
		ID:      r.msgId,
		Status:  status,
		Type:    typ,
		Content: content,
	})
	r.msgId += 1
	return err
}

// Follow reads ms until a DONE or ERR message, calling fn for each
// message including the last one.
func Follow(ctx context.Context, ms MessageStream, fn func(*MessageStreamPayload) error) error {
	for {
		payload, err := ms.Recv(ctx)
		if err != nil {
			return err
		}
		if err := fn(payload); err != nil {
			return err
		}
		if payload.Terminal() {
			return nil
		}
	}
}
