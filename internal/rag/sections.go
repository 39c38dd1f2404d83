package rag

import (
	"slices"
	"strings"

	"github.com/alan-mat/pdfqa/internal/api"
)

// ParseSections extracts the default sections from a generated answer.
// Parsing is a best effort over free-form text: sections whose header
// cannot be found are left out of the map, while a header followed by
// nothing maps to the empty string.
func ParseSections(answer string) map[string]string {
	sections := make(map[string]string, len(Sections))
	for _, name := range Sections {
		if body, ok := ExtractSection(answer, name); ok {
			sections[name] = body
		}
	}
	return sections
}

// ExtractSection returns the lines following the first header line that
// mentions name, up to the next line starting with a heading or bold
// marker. A header line is one that mentions name and contains "**" or
// "#".
func ExtractSection(answer, name string) (string, bool) {
	var (
		lines []string
		found bool
	)
	for line := range strings.Lines(answer) {
		line = strings.TrimRight(line, "\r\n")
		if !found {
			if strings.Contains(line, name) && hasMarkup(line) {
				found = true
			}
			continue
		}
		if startsWithMarker(line) {
			break
		}
		lines = append(lines, line)
	}
	if !found {
		return "", false
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), true
}

func hasMarkup(line string) bool {
	return strings.Contains(line, "**") || strings.Contains(line, "#")
}

func startsWithMarker(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "#") || strings.HasPrefix(line, "**")
}

// DeriveReferencedPages returns the distinct page numbers of results in
// ascending order. Pages come from retrieval, never from the answer text.
func DeriveReferencedPages(results []api.SearchResult) []int {
	pages := make([]int, 0, len(results))
	for _, r := range results {
		pages = append(pages, r.PageNumber)
	}
	slices.Sort(pages)
	return slices.Compact(pages)
}
