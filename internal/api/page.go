package api

import (
	"strings"
	"unicode/utf8"
)

// Page is the extracted text of a single physical page. Pages are
// numbered from 1 in reading order.
type Page struct {
	Number    int    `json:"page_number"`
	Text      string `json:"text"`
	CharCount int    `json:"char_count"`
}

func NewPage(number int, text string) Page {
	return Page{
		Number:    number,
		Text:      text,
		CharCount: utf8.RuneCountInString(text),
	}
}

func (p Page) IsBlank() bool {
	return strings.TrimSpace(p.Text) == ""
}

type PageInfo struct {
	Number     int    `json:"page_number"`
	Text       string `json:"text"`
	CharCount  int    `json:"char_count"`
	ImageCount int    `json:"image_count"`
}

type DocumentInfo struct {
	CorpusID   string `json:"corpus_id"`
	Source     string `json:"source"`
	Path       string `json:"path"`
	TotalPages int    `json:"total_pages"`
	ChunkCount int    `json:"chunk_count"`
	BuiltAt    int64  `json:"built_at"`
}
