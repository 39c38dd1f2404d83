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

package mistral

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sort"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/http"
)

const (
	Endpoint = "https://api.mistral.ai"

	DefaultOCRModel = "mistral-ocr-latest"
)

type page struct {
	Index      int              `json:"index"`
	Markdown   string           `json:"markdown"`
	Images     []map[string]any `json:"images"`
	Dimensions map[string]any   `json:"dimensions"`
}

type usageInfo struct {
	PagesProcessed int `json:"pages_processed"`
	DocSizeBytes   int `json:"doc_size_bytes"`
}

type OCRResponse struct {
	Pages     []page    `json:"pages"`
	Model     string    `json:"model"`
	UsageInfo usageInfo `json:"usage_info"`
}

// OCRExtractor extracts page text through the Mistral OCR API. It is an
// alternative to local extraction for scanned documents.
type OCRExtractor struct {
	client http.Client
	model  string
}

type Option func(*OCRExtractor)

func WithEndpoint(endpoint string) Option {
	return func(e *OCRExtractor) {
		if endpoint != "" {
			e.client = http.NewClient(
				endpoint,
				http.WithMaxRetries(3),
				http.WithApiKey(os.Getenv("MISTRAL_API_KEY")),
			)
		}
	}
}

func New(opts ...Option) *OCRExtractor {
	c := http.NewClient(
		Endpoint,
		http.WithMaxRetries(3),
		http.WithApiKey(os.Getenv("MISTRAL_API_KEY")),
	)
	e := &OCRExtractor{
		client: c,
		model:  DefaultOCRModel,
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the PDF at path and returns its pages numbered from 1.
func (e OCRExtractor) Extract(ctx context.Context, path string) ([]api.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	resp, err := e.Parse(ctx, base64.StdEncoding.EncodeToString(data))
	if err != nil {
		return nil, err
	}

	sort.Slice(resp.Pages, func(i, j int) bool {
		return resp.Pages[i].Index < resp.Pages[j].Index
	})

	pages := make([]api.Page, 0, len(resp.Pages))
	for _, p := range resp.Pages {
		pages = append(pages, api.NewPage(p.Index+1, p.Markdown))
	}
	return pages, nil
}

func (e OCRExtractor) Parse(ctx context.Context, base64file string) (*OCRResponse, error) {
	documentUrl := map[string]any{
		"type":         "document_url",
		"document_url": fmt.Sprintf("data:application/pdf;base64,%s", base64file),
	}

	requestData := map[string]any{
		"model":    e.model,
		"document": documentUrl,
	}

	var ocrResponse OCRResponse
	if err := e.client.Request(ctx, http.MethodPost, "/v1/ocr", requestData, &ocrResponse); err != nil {
		return nil, err
	}

	return &ocrResponse, nil
}
