package server

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/alan-mat/pdfqa/internal/api"
)

type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a pdfqa server. The JSON content subtype is always
// requested; opts may override the plaintext transport credentials.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	out := new(QueryResponse)
	if err := c.conn.Invoke(ctx, fullMethod("Query"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	out := new(SearchResponse)
	if err := c.conn.Invoke(ctx, fullMethod("Search"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Trace(ctx context.Context, req *TraceRequest) (*TraceResponse, error) {
	out := new(TraceResponse)
	if err := c.conn.Invoke(ctx, fullMethod("Trace"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PageInfo(ctx context.Context, req *PageRequest) (*api.PageInfo, error) {
	out := new(api.PageInfo)
	if err := c.conn.Invoke(ctx, fullMethod("PageInfo"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DocumentInfo(ctx context.Context) (*api.DocumentInfo, error) {
	out := new(api.DocumentInfo)
	if err := c.conn.Invoke(ctx, fullMethod("DocumentInfo"), &DocumentInfoRequest{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PageImage(ctx context.Context, req *PageImageRequest) (*PageImageResponse, error) {
	out := new(PageImageResponse)
	if err := c.conn.Invoke(ctx, fullMethod("PageImage"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadDocument enqueues a build and calls fn for every progress message
// until the build finishes.
func (c *Client) LoadDocument(ctx context.Context, req *LoadDocumentRequest, fn func(*BuildProgress) error) error {
	return c.follow(ctx, &ServiceDesc.Streams[0], req, fn)
}

func (c *Client) WatchBuild(ctx context.Context, req *TraceRequest, fn func(*BuildProgress) error) error {
	return c.follow(ctx, &ServiceDesc.Streams[1], req, fn)
}

func (c *Client) follow(ctx context.Context, desc *grpc.StreamDesc, req any, fn func(*BuildProgress) error) error {
	stream, err := c.conn.NewStream(ctx, desc, fullMethod(desc.StreamName))
	if err != nil {
		return err
	}
	x := &grpc.GenericClientStream[any, BuildProgress]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return err
	}

	for {
		msg, err := x.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}
