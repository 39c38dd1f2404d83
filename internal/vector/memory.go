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

package vector

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
)

// MemoryStore is a brute force cosine index held in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dims   uint
	points map[uint64]*Point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
	}
}

func (s *MemoryStore) CollectionExists(_ context.Context, collectionName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.collections[collectionName]
	return ok, nil
}

func (s *MemoryStore) CreateCollection(_ context.Context, collection Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection.Name]; ok {
		return fmt.Errorf("collection %q already exists", collection.Name)
	}
	s.collections[collection.Name] = &memoryCollection{
		dims:   collection.Dimensions,
		points: make(map[uint64]*Point),
	}
	return nil
}

func (s *MemoryStore) DeleteCollection(_ context.Context, collectionName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, collectionName)
	return nil
}

func (s *MemoryStore) Upsert(_ context.Context, collectionName string, points []*Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collectionName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionName)
	}

	for _, p := range points {
		if c.dims > 0 && uint(len(p.Vector)) != c.dims {
			return fmt.Errorf("%w: point %d has %d, collection has %d", ErrDimensionMismatch, p.ID, len(p.Vector), c.dims)
		}
	}
	for _, p := range points {
		c.points[p.ID] = &Point{
			ID:      p.ID,
			Vector:  slices.Clone(p.Vector),
			Payload: p.Payload,
		}
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, params *QueryParams) ([]*ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[params.collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, params.collection)
	}
	if c.dims > 0 && uint(len(params.query)) != c.dims {
		return nil, fmt.Errorf("%w: query has %d, collection has %d", ErrDimensionMismatch, len(params.query), c.dims)
	}

	scored := make([]*ScoredPoint, 0, len(c.points))
	for _, p := range c.points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !matches(p.Payload, params.filters) {
			continue
		}

		sp := &ScoredPoint{
			ID:    p.ID,
			Score: cosine(params.query, p.Vector),
		}
		if params.withPayload {
			sp.Payload = stringPayload(p.Payload)
		}
		scored = append(scored, sp)
	}

	// descending score, ties broken by ascending id
	slices.SortFunc(scored, func(a, b *ScoredPoint) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	if params.limit > 0 && uint(len(scored)) > params.limit {
		scored = scored[:params.limit]
	}
	return scored, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.collections)
	return nil
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func matches(payload map[string]any, filters []*QueryMatch) bool {
	for _, f := range filters {
		v, ok := payload[f.Key]
		if !ok || fmt.Sprint(v) != f.Value {
			return false
		}
	}
	return true
}

func stringPayload(payload map[string]any) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		out[k] = fmt.Sprint(v)
	}
	return out
}
