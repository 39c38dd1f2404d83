package api

type AnswerResult struct {
	Question        string         `json:"question"`
	Answer          string         `json:"answer"`
	ReferencedPages []int          `json:"referenced_pages"`
	SourceChunks    []SearchResult `json:"source_chunks"`
	Model           string         `json:"model"`
	TotalTokens     int            `json:"total_tokens"`

	// CorpusID and Document identify the corpus the answer was grounded
	// in. Document is the PDF path citations must be rendered from.
	CorpusID string `json:"corpus_id"`
	Document string `json:"document,omitempty"`
}

type PageImage struct {
	PageNumber int    `json:"page_number"`
	Path       string `json:"path"`
}

type SourcePreview struct {
	ChunkID    int     `json:"chunk_id"`
	PageNumber int     `json:"page_number"`
	Source     string  `json:"source"`
	Preview    string  `json:"preview"`
	Score      float64 `json:"similarity_score"`
}

type Citations struct {
	Images  []PageImage     `json:"images"`
	Sources []SourcePreview `json:"sources"`
}
