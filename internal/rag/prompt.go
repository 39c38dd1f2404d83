package rag

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/alan-mat/pdfqa/internal/api"
)

const (
	SectionOverview = "Overview"
	SectionSteps    = "Step-by-step"
	SectionNotes    = "Notes"
)

// Sections are listed in the order the default prompt asks for them.
var Sections = []string{SectionOverview, SectionSteps, SectionNotes}

const DefaultSystemPrompt = `You are an expert installation guide. Answer the user's question clearly and step by step, using the provided document content.

Answer format:
1. **Overview**: a short summary answering the question
2. **Step-by-step**: the concrete steps as a numbered list
3. **Notes**: additional information the user should know

Put each section title on its own line in bold, for example **Overview**, and write the section content on the lines below it.
Write professionally but keep the answer easy to follow.`

const userPromptTemplate = `Answer the question using the document content below.

Document content:
{{.Context}}

Question: {{.Question}}`

var userPrompt = template.Must(template.New("userPrompt").Parse(userPromptTemplate))

// Prompt is the system and user message pair sent to the generator.
type Prompt struct {
	System string
	User   string
}

// AssemblePrompt builds a grounded prompt from the retrieved results in
// the order given. An empty systemPrompt selects DefaultSystemPrompt.
func AssemblePrompt(question string, results []api.SearchResult, systemPrompt string) (Prompt, error) {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	type templatePayload struct {
		Context  string
		Question string
	}
	tp := templatePayload{
		Context:  FormatContext(results),
		Question: question,
	}

	var buf bytes.Buffer
	if err := userPrompt.Execute(&buf, tp); err != nil {
		return Prompt{}, fmt.Errorf("failed to execute prompt template for question '%s': %w", question, err)
	}

	return Prompt{
		System: systemPrompt,
		User:   buf.String(),
	}, nil
}

// FormatContext numbers each excerpt from 1 and tags it with its page.
func FormatContext(results []api.SearchResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[Document %d - Page %d]\n%s\n", i+1, r.PageNumber, r.Text))
	}
	return strings.Join(parts, "\n")
}
