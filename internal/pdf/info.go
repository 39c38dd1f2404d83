package pdf

import (
	"fmt"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/tsawler/tabula"
	"github.com/tsawler/tabula/reader"
)

// PageCount returns the number of physical pages in the document.
func PageCount(path string) (int, error) {
	r, err := reader.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer r.Close()

	return r.PageCount()
}

// Info returns the text and image count of a single page.
func Info(path string, page int) (api.PageInfo, error) {
	r, err := reader.Open(path)
	if err != nil {
		return api.PageInfo{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer r.Close()

	total, err := r.PageCount()
	if err != nil {
		return api.PageInfo{}, err
	}
	if page < 1 || page > total {
		return api.PageInfo{}, api.InvalidPageError{Page: page, Total: total}
	}

	p, err := r.GetPage(page - 1)
	if err != nil {
		return api.PageInfo{}, fmt.Errorf("failed to load page %d: %w", page, err)
	}
	images, err := r.ExtractPageImages(p)
	if err != nil {
		return api.PageInfo{}, fmt.Errorf("failed to list images on page %d: %w", page, err)
	}

	text, _, err := tabula.FromReader(r).Pages(page).Text()
	if err != nil {
		return api.PageInfo{}, fmt.Errorf("failed to extract page %d: %w", page, err)
	}

	pg := api.NewPage(page, normalize(text))
	return api.PageInfo{
		Number:     pg.Number,
		Text:       pg.Text,
		CharCount:  pg.CharCount,
		ImageCount: len(images),
	}, nil
}
