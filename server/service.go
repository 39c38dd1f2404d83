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

	"google.golang.org/grpc"

	"github.com/alan-mat/pdfqa/internal/api"
)

const ServiceName = "pdfqa.v1.PDFQAService"

type PDFQAServer interface {
	Query(context.Context, *QueryRequest) (*QueryResponse, error)
	Search(context.Context, *SearchRequest) (*SearchResponse, error)
	LoadDocument(*LoadDocumentRequest, grpc.ServerStreamingServer[BuildProgress]) error
	WatchBuild(*TraceRequest, grpc.ServerStreamingServer[BuildProgress]) error
	Trace(context.Context, *TraceRequest) (*TraceResponse, error)
	PageInfo(context.Context, *PageRequest) (*api.PageInfo, error)
	DocumentInfo(context.Context, *DocumentInfoRequest) (*api.DocumentInfo, error)
	PageImage(context.Context, *PageImageRequest) (*PageImageResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PDFQAServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Query", PDFQAServer.Query),
		unaryMethod("Search", PDFQAServer.Search),
		unaryMethod("Trace", PDFQAServer.Trace),
		unaryMethod("PageInfo", PDFQAServer.PageInfo),
		unaryMethod("DocumentInfo", PDFQAServer.DocumentInfo),
		unaryMethod("PageImage", PDFQAServer.PageImage),
	},
	Streams: []grpc.StreamDesc{
		serverStream("LoadDocument", PDFQAServer.LoadDocument),
		serverStream("WatchBuild", PDFQAServer.WatchBuild),
	},
	Metadata: "pdfqa/v1/service",
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unaryMethod[Req, Res any](name string, call func(PDFQAServer, context.Context, *Req) (*Res, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PDFQAServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PDFQAServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func serverStream[Req, Res any](name string, call func(PDFQAServer, *Req, grpc.ServerStreamingServer[Res]) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(PDFQAServer), in, &grpc.GenericServerStream[Req, Res]{ServerStream: stream})
		},
	}
}
