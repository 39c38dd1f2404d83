// Package chunker turns extracted pages into page-tagged chunks. Pages
// are split independently so a chunk, and the overlap it carries, never
// crosses a page boundary.
package chunker

import (
	"errors"
	"fmt"

	"github.com/alan-mat/pdfqa/internal/api"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var (
	ErrInvalidChunkSize    = errors.New("chunk size must be greater than zero")
	ErrInvalidChunkOverlap = errors.New("chunk overlap must be non-negative and smaller than chunk size")
	ErrNoSeparators        = errors.New("at least one separator is required")
	ErrPageOrder           = errors.New("pages must be numbered from 1 in ascending order")
)

// DefaultOverlap returns DefaultChunkOverlap when it fits below size and a
// fifth of size otherwise.
func DefaultOverlap(size int) int {
	if size > DefaultChunkOverlap {
		return DefaultChunkOverlap
	}
	return max(size/5, 0)
}

type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

type Option func(*Splitter)

func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		s.chunkSize = size
	}
}

func WithChunkOverlap(overlap int) Option {
	return func(s *Splitter) {
		s.chunkOverlap = overlap
	}
}

// WithSeparators replaces the separator hierarchy. Leaving out the empty
// separator disables character level cuts, so a token longer than the
// chunk size is emitted as a chunk of its own.
func WithSeparators(separators ...string) Option {
	return func(s *Splitter) {
		s.separators = separators
	}
}

func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		separators:   DefaultSeparators,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if s.chunkOverlap < 0 || s.chunkOverlap >= s.chunkSize {
		return nil, fmt.Errorf("%w (size %d, overlap %d)", ErrInvalidChunkOverlap, s.chunkSize, s.chunkOverlap)
	}
	if len(s.separators) == 0 {
		return nil, ErrNoSeparators
	}

	return s, nil
}

func (s *Splitter) ChunkSize() int {
	return s.chunkSize
}

func (s *Splitter) ChunkOverlap() int {
	return s.chunkOverlap
}

// Chunk splits every non-blank page and assigns chunk ids in page order,
// then in split order, starting at zero.
func (s *Splitter) Chunk(pages []api.Page, source string) ([]api.Chunk, error) {
	chunks := make([]api.Chunk, 0, len(pages))

	prev := 0
	for _, page := range pages {
		if page.Number <= prev {
			return nil, fmt.Errorf("%w: page %d follows page %d", ErrPageOrder, page.Number, prev)
		}
		prev = page.Number

		if page.IsBlank() {
			continue
		}

		for _, text := range s.SplitText(page.Text) {
			chunks = append(chunks, api.Chunk{
				ID:         len(chunks),
				Text:       text,
				PageNumber: page.Number,
				Source:     source,
			})
		}
	}

	return chunks, nil
}

// Chunk is a shorthand for building a Splitter with the given size and
// overlap and chunking pages with it.
func Chunk(pages []api.Page, source string, chunkSize, chunkOverlap int) ([]api.Chunk, error) {
	s, err := New(WithChunkSize(chunkSize), WithChunkOverlap(chunkOverlap))
	if err != nil {
		return nil, err
	}
	return s.Chunk(pages, source)
}
