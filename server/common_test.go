package server

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/chunker"
	"github.com/alan-mat/pdfqa/internal/pdf"
)

func TestStatusError(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{api.NotReadyError{Op: "query"}, codes.FailedPrecondition},
		{api.InvalidPageError{Page: 7, Total: 3}, codes.InvalidArgument},
		{api.EmptyInputError{Field: "question"}, codes.InvalidArgument},
		{fmt.Errorf("chunking: %w", chunker.ErrInvalidChunkOverlap), codes.InvalidArgument},
		{api.DependencyError{Dependency: "generator", Op: "generate", Cause: errors.New("timeout")}, codes.Unavailable},
		{api.DependencyError{Dependency: "vector index", Op: "query", Cause: status.Error(codes.InvalidArgument, "wrong vector size")}, codes.Unavailable},
		{fmt.Errorf("render: %w", pdf.ErrInvalidDPI), codes.InvalidArgument},
		{fmt.Errorf("lookup: %w", status.Error(codes.NotFound, "gone")), codes.Internal},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{status.Error(codes.NotFound, "gone"), codes.NotFound},
		{errors.New("disk on fire"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.code, status.Code(statusError(tt.err)))
		})
	}

	assert.NoError(t, statusError(nil))
	assert.Equal(t, "internal server error", status.Convert(statusError(errors.New("secret"))).Message())
}

func TestRecoverInterceptors(t *testing.T) {
	panicking := func(context.Context, any) (any, error) {
		panic("index out of range")
	}
	_, err := recoverUnary(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/pdfqa.v1.PDFQAService/PageImage"}, panicking)
	assert.Equal(t, codes.Internal, status.Code(err))

	err = recoverStream(nil, nil, &grpc.StreamServerInfo{FullMethod: "/pdfqa.v1.PDFQAService/LoadDocument"}, func(any, grpc.ServerStream) error {
		panic("nil map")
	})
	assert.Equal(t, codes.Internal, status.Code(err))

	resp, err := recoverUnary(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp)
}
