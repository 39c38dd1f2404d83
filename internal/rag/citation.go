package rag

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/alan-mat/pdfqa/internal/api"
)

const (
	PreviewLength = 200
	PreviewSuffix = "..."
)

// PageRenderer produces a displayable image of one page and returns its
// location.
type PageRenderer interface {
	Render(ctx context.Context, document string, page, dpi int) (string, error)
}

// Resolver maps referenced pages and source chunks to citations.
type Resolver struct {
	renderer PageRenderer
	document string
	dpi      int
}

func NewResolver(renderer PageRenderer, document string, dpi int) *Resolver {
	return &Resolver{
		renderer: renderer,
		document: document,
		dpi:      dpi,
	}
}

// Resolve renders every referenced page and previews every source chunk.
// A page that fails to render is logged and left out of the images.
func (r *Resolver) Resolve(ctx context.Context, pages []int, sources []api.SearchResult) api.Citations {
	c := api.Citations{
		Images:  make([]api.PageImage, 0, len(pages)),
		Sources: make([]api.SourcePreview, 0, len(sources)),
	}

	if r.renderer != nil {
		for _, page := range pages {
			path, err := r.renderer.Render(ctx, r.document, page, r.dpi)
			if err != nil {
				slog.Warn("failed to render page", "document", r.document, "page", page, "err", err)
				continue
			}
			c.Images = append(c.Images, api.PageImage{PageNumber: page, Path: path})
		}
	}

	for _, s := range sources {
		c.Sources = append(c.Sources, api.SourcePreview{
			ChunkID:    s.ID,
			PageNumber: s.PageNumber,
			Source:     s.Source,
			Preview:    Preview(s.Text),
			Score:      s.Score,
		})
	}
	return c
}

// Preview returns text unchanged when it has at most PreviewLength
// characters, otherwise its first PreviewLength characters followed by
// PreviewSuffix.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	return string([]rune(text)[:PreviewLength]) + PreviewSuffix
}
