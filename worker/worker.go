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

package worker

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/alan-mat/pdfqa/internal/tasks"
)

const DefaultConcurrency = 2

// Worker runs corpus builds from the asynq queue.
type Worker struct {
	asynqServer *asynq.Server
	mux         *asynq.ServeMux
}

func New(rdb *redis.Client, handler asynq.Handler, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	srv := asynq.NewServerFromRedisClient(
		rdb,
		asynq.Config{
			Concurrency: concurrency,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				slog.Error("task failed", "type", task.Type(), "err", err)
			}),
		},
	)

	return &Worker{
		asynqServer: srv,
		mux:         NewServeMux(handler),
	}
}

func NewServeMux(handler asynq.Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeBuildCorpus, handler)
	return mux
}

// Run processes tasks until ctx is done, then waits for running tasks
// to finish.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.asynqServer.Start(w.mux); err != nil {
		return err
	}
	slog.Info("worker started")

	<-ctx.Done()
	w.asynqServer.Shutdown()
	slog.Info("worker stopped")
	return nil
}
