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

package rag

import (
	"slices"
	"sync"
	"time"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/provider"
	"github.com/alan-mat/pdfqa/internal/storage"
)

// Corpus is one built document: its chunks, the embedder their vectors
// came from and the index collection holding them. The chunk data never
// changes after build. Only the reference counting used to drop the
// index collection once the corpus is replaced is mutable.
type Corpus struct {
	ID           string
	Source       string
	Path         string
	TotalPages   int
	ChunkSize    int
	ChunkOverlap int
	BuiltAt      time.Time

	chunks     []api.Chunk
	vectors    [][]float32
	embedder   provider.Embedder
	embedName  string
	collection string

	mu      sync.Mutex
	refs    int
	retired bool
	onDrain func()
}

func (c *Corpus) Len() int {
	return len(c.chunks)
}

// Chunks returns a copy of the chunk sequence in id order.
func (c *Corpus) Chunks() []api.Chunk {
	return slices.Clone(c.chunks)
}

func (c *Corpus) Chunk(id int) (api.Chunk, bool) {
	if id < 0 || id >= len(c.chunks) {
		return api.Chunk{}, false
	}
	return c.chunks[id], true
}

func (c *Corpus) Collection() string {
	return c.collection
}

func (c *Corpus) Info() api.DocumentInfo {
	return api.DocumentInfo{
		CorpusID:   c.ID,
		Source:     c.Source,
		Path:       c.Path,
		TotalPages: c.TotalPages,
		ChunkCount: len(c.chunks),
		BuiltAt:    c.BuiltAt.Unix(),
	}
}

// Snapshot returns the persistable form of the corpus.
func (c *Corpus) Snapshot() *storage.Snapshot {
	var dims int
	if len(c.vectors) > 0 {
		dims = len(c.vectors[0])
	}
	return &storage.Snapshot{
		CorpusID:     c.ID,
		Source:       c.Source,
		Path:         c.Path,
		TotalPages:   c.TotalPages,
		ChunkSize:    c.ChunkSize,
		ChunkOverlap: c.ChunkOverlap,
		Embedder:     c.embedName,
		Dimensions:   dims,
		BuiltAt:      c.BuiltAt,
		Chunks:       slices.Clone(c.chunks),
		Vectors:      slices.Clone(c.vectors),
	}
}

// acquire pins the corpus for one request. It fails once the corpus
// has been retired, in which case the caller should load the current
// one again.
func (c *Corpus) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.retired {
		return false
	}
	c.refs++
	return true
}

func (c *Corpus) release() {
	c.mu.Lock()
	c.refs--
	drain := c.retired && c.refs == 0
	fn := c.onDrain
	c.mu.Unlock()

	if drain && fn != nil {
		fn()
	}
}

// retire marks the corpus as replaced. fn runs once no request holds it.
func (c *Corpus) retire(fn func()) {
	c.mu.Lock()
	c.retired = true
	c.onDrain = fn
	drain := c.refs == 0
	c.mu.Unlock()

	if drain && fn != nil {
		fn()
	}
}
