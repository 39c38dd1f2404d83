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

// Package vector stores chunk embeddings and answers nearest neighbour
// queries over them. Scores are cosine similarities, higher is better.
package vector

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/alan-mat/pdfqa/internal/api"
)

var (
	ErrInvalidStoreType      = errors.New("no vector store found for given type")
	ErrFailedStoreInitialize = errors.New("failed to initialise vector store")
	ErrCollectionNotFound    = errors.New("collection not found")
	ErrDimensionMismatch     = errors.New("vector dimension mismatch")
	ErrLengthMismatch        = errors.New("chunk and vector counts differ")
)

const (
	StoreTypeMemory StoreType = iota
	StoreTypeQdrant
)

var storeTypeMap = map[string]StoreType{
	"memory": StoreTypeMemory,
	"qdrant": StoreTypeQdrant,
}

type StoreType int

type Store interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, collection Collection) error
	DeleteCollection(ctx context.Context, collectionName string) error

	Upsert(ctx context.Context, collectionName string, points []*Point) error

	Query(ctx context.Context, params *QueryParams) ([]*ScoredPoint, error)

	Close() error
}

type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

func NewStore(storeName string, cfg Config) (Store, error) {
	storeType, ok := storeTypeMap[storeName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStoreType, storeName)
	}

	switch storeType {
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeQdrant:
		store, err := NewQdrantStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedStoreInitialize, err)
		}
		return store, nil
	default:
		return nil, ErrInvalidStoreType
	}
}

type Collection struct {
	Name       string
	Dimensions uint
}

// Point ids are chunk ids, so a query result maps straight back to the
// chunk it was built from.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]any
}

type ScoredPoint struct {
	ID      uint64
	Score   float32
	Payload map[string]string
}

func CreatePoints(chunks []api.Chunk, vectors [][]float32) ([]*Point, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors", ErrLengthMismatch, len(chunks), len(vectors))
	}

	points := make([]*Point, 0, len(chunks))
	for i, c := range chunks {
		points = append(points, &Point{
			ID:     uint64(c.ID),
			Vector: vectors[i],
			Payload: map[string]any{
				"source":      c.Source,
				"page_number": c.PageNumber,
				"text":        c.Text,
			},
		})
	}
	return points, nil
}

type QueryMatch struct {
	Key   string
	Value string
}

type QueryParams struct {
	collection  string
	query       []float32
	withPayload bool
	limit       uint
	filters     []*QueryMatch
}

type QueryParamsOption func(*QueryParams)

func NewQueryParams(collection string, query []float32, opts ...QueryParamsOption) *QueryParams {
	qp := &QueryParams{
		collection:  collection,
		query:       query,
		withPayload: false,
		limit:       0,
		filters:     make([]*QueryMatch, 0),
	}

	for _, opt := range opts {
		opt(qp)
	}
	return qp
}

func WithPayload(w bool) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.withPayload = w
	}
}

func WithLimit(limit uint) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.limit = limit
	}
}

func WithFilter(filter *QueryMatch) QueryParamsOption {
	return func(qp *QueryParams) {
		qp.filters = append(qp.filters, filter)
	}
}

// PageFilter restricts a query to chunks from one page.
func PageFilter(page int) *QueryMatch {
	return &QueryMatch{Key: "page_number", Value: strconv.Itoa(page)}
}
