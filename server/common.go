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

package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/chunker"
	"github.com/alan-mat/pdfqa/internal/pdf"
	"github.com/alan-mat/pdfqa/internal/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type messageResponseFunc[T any] func(msg *transport.MessageStreamPayload, traceID string) *T

// handleMessageStream forwards stream messages to the client up to and
// including the terminal one. An ERR message ends the call with Aborted.
func handleMessageStream[T any](
	ctx context.Context,
	traceID string,
	tstream transport.MessageStream,
	stream grpc.ServerStreamingServer[T],
	respFunc messageResponseFunc[T],
) error {
	readFails := 0
	for {
		msg, err := tstream.Recv(ctx)

		if err != nil {
			if ctx.Err() != nil {
				return status.FromContextError(ctx.Err()).Err()
			}
			slog.Warn("failed to read from stream", "stream", traceID, "err", err)
			readFails += 1
			if readFails >= 10 {
				slog.Error("exceeded stream read attempts, failed", "id", traceID)
				return status.Errorf(codes.Internal, "internal server error")
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		readFails = 0

		resp := respFunc(msg, traceID)
		if err := stream.Send(resp); err != nil {
			return err
		}

		switch msg.Status {
		case transport.StatusErr:
			return status.Error(codes.Aborted, msg.Content)
		case transport.StatusDone:
			slog.Debug("message stream done", "trace", traceID)
			return nil
		}
	}
}

func buildProgress(msg *transport.MessageStreamPayload, traceID string) *BuildProgress {
	return &BuildProgress{
		MsgID:   msg.ID,
		TraceID: traceID,
		Status:  msg.Status,
		Content: msg.Content,
	}
}

// statusError translates core errors into gRPC status errors. Unknown
// errors are logged and hidden behind Internal.
func statusError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, api.ErrNotReady):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, api.ErrInvalidPage),
		errors.Is(err, api.ErrEmptyInput),
		errors.Is(err, chunker.ErrInvalidChunkSize),
		errors.Is(err, chunker.ErrInvalidChunkOverlap),
		errors.Is(err, pdf.ErrInvalidDPI):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, api.ErrDependency):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}

	// Only statuses raised by the handlers themselves pass through. A
	// wrapped status belongs to a collaborator and is covered above.
	if se, ok := err.(interface{ GRPCStatus() *status.Status }); ok {
		return se.GRPCStatus().Err()
	}

	slog.Error("request failed", "err", err)
	return status.Errorf(codes.Internal, "internal server error")
}
