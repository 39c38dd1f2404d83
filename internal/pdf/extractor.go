// Package pdf reads page text, page metadata and page raster images from
// PDF documents.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/tsawler/tabula"
	"github.com/tsawler/tabula/reader"
	"golang.org/x/text/unicode/norm"
)

var ErrNoPages = errors.New("document has no pages")

// Extractor returns one api.Page per physical page, numbered from 1.
// Pages whose text layer is empty are kept so page numbers stay aligned
// with the physical document.
type Extractor struct {
	joinParagraphs bool
}

type ExtractorOption func(*Extractor)

func WithJoinParagraphs() ExtractorOption {
	return func(e *Extractor) {
		e.joinParagraphs = true
	}
}

func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) Extract(ctx context.Context, path string) ([]api.Page, error) {
	r, err := reader.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer r.Close()

	total, err := r.PageCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count pages of %s: %w", path, err)
	}
	if total == 0 {
		return nil, ErrNoPages
	}

	pages := make([]api.Page, 0, total)
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ext := tabula.FromReader(r).Pages(n)
		if e.joinParagraphs {
			ext = ext.JoinParagraphs()
		}
		text, warnings, err := ext.Text()
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d of %s: %w", n, path, err)
		}
		if len(warnings) > 0 {
			slog.Debug("page extracted with warnings", "path", path, "page", n, "warnings", len(warnings))
		}

		pages = append(pages, api.NewPage(n, normalize(text)))
	}

	return pages, nil
}

func normalize(text string) string {
	text = norm.NFC.String(text)
	return strings.ReplaceAll(text, "\r\n", "\n")
}
