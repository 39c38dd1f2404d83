package api

type ChatRequest struct {
	// Required
	Query string

	// Optional params
	SystemPrompt string
	ModelName    string
	Temperature  float32
	MaxTokens    int
}

type Completion struct {
	Text        string
	Model       string
	TotalTokens int
}
