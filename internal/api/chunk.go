package api

// Chunk is a bounded piece of a single page's text. ID values are dense
// and zero based across one corpus build.
type Chunk struct {
	ID         int    `json:"chunk_id"`
	Text       string `json:"text"`
	PageNumber int    `json:"page_number"`
	Source     string `json:"source"`
}

// SearchResult is a chunk returned by a similarity query. Score is the
// raw value reported by the index and is only comparable within one
// index implementation.
type SearchResult struct {
	Chunk
	Score float64 `json:"similarity_score"`
}

func Texts(chunks []Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}
