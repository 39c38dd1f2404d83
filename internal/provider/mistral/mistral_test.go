package mistral_test

import (
	"context"
	"encoding/json"
	gohttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/pdfqa/internal/provider/mistral"
)

func TestExtractOrdersPages(t *testing.T) {
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		assert.Equal(t, "/v1/ocr", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		doc := body["document"].(map[string]any)
		assert.True(t, strings.HasPrefix(doc["document_url"].(string), "data:application/pdf;base64,"))

		json.NewEncoder(w).Encode(map[string]any{
			"model": "mistral-ocr-latest",
			"pages": []map[string]any{
				{"index": 1, "markdown": "# Setup\nConnect the cable."},
				{"index": 0, "markdown": "# Intro\nUnbox the widget."},
			},
		})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	pages, err := mistral.New(mistral.WithEndpoint(srv.URL)).Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "# Intro\nUnbox the widget.", pages[0].Text)
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, len([]rune(pages[1].Text)), pages[1].CharCount)
}
