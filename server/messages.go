package server

import (
	"github.com/alan-mat/pdfqa/internal/api"
)

type QueryRequest struct {
	Question     string `json:"question"`
	K            int    `json:"k,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	DPI          int    `json:"dpi,omitempty"`
}

type QueryResponse struct {
	Result    *api.AnswerResult `json:"result"`
	Sections  map[string]string `json:"sections"`
	Citations api.Citations     `json:"citations"`
}

type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
	// Page restricts results to one page when set.
	Page int `json:"page,omitempty"`
}

type SearchResponse struct {
	Results []api.SearchResult `json:"results"`
}

type LoadDocumentRequest struct {
	Path         string `json:"path"`
	Source       string `json:"source,omitempty"`
	ChunkSize    int    `json:"chunk_size,omitempty"`
	ChunkOverlap *int   `json:"chunk_overlap,omitempty"`
}

// BuildProgress is one message of a build stream. The last message has
// status DONE with the corpus id as content, or ERR with the failure.
type BuildProgress struct {
	MsgID   int    `json:"msg_id"`
	TraceID string `json:"trace_id"`
	Status  string `json:"status"`
	Content string `json:"content"`
}

type TraceRequest struct {
	TraceID string `json:"trace_id"`
}

type TraceResponse struct {
	TraceID     string `json:"trace_id"`
	Status      int    `json:"status"`
	StartedAt   int64  `json:"started_at"`
	CompletedAt int64  `json:"completed_at"`
	Document    string `json:"document"`
	CorpusID    string `json:"corpus_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

type PageRequest struct {
	Page int `json:"page"`
}

type DocumentInfoRequest struct{}

type PageImageRequest struct {
	Page int `json:"page"`
	DPI  int `json:"dpi,omitempty"`
}

type PageImageResponse struct {
	PageNumber int    `json:"page_number"`
	PNG        []byte `json:"png"`
}
