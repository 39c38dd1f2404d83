package rag_test

import (
	"reflect"
	"testing"

	"github.com/alan-mat/pdfqa/internal/api"
	"github.com/alan-mat/pdfqa/internal/rag"
)

const sampleAnswer = `Here is how to install the widget.

**Overview**
Unbox the widget and connect it.

**Step-by-step**
1. Unbox the widget.
2. Connect the cable.

## Notes
Keep the receipt.`

func TestParseSections(t *testing.T) {
	got := rag.ParseSections(sampleAnswer)
	expected := map[string]string{
		rag.SectionOverview: "Unbox the widget and connect it.",
		rag.SectionSteps:    "1. Unbox the widget.\n2. Connect the cable.",
		rag.SectionNotes:    "Keep the receipt.",
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected sections %q, got %q", expected, got)
	}
}

func TestParseSectionsAbsent(t *testing.T) {
	got := rag.ParseSections("no headers here")
	if len(got) != 0 {
		t.Errorf("expected no sections, got %q", got)
	}
	for _, name := range rag.Sections {
		if _, ok := got[name]; ok {
			t.Errorf("section %q should be absent", name)
		}
	}
}

func TestExtractSectionPresentButEmpty(t *testing.T) {
	body, ok := rag.ExtractSection("**Overview**\n**Notes**\nsomething", rag.SectionOverview)
	if !ok {
		t.Fatal("expected overview header to be found")
	}
	if body != "" {
		t.Errorf("expected empty overview, got %q", body)
	}
}

func TestExtractSectionNeedsMarkup(t *testing.T) {
	if _, ok := rag.ExtractSection("Overview\ntext", rag.SectionOverview); ok {
		t.Error("a header without markup must not match")
	}
	body, ok := rag.ExtractSection("# Overview\ntext\nmore\r\n", rag.SectionOverview)
	if !ok || body != "text\nmore" {
		t.Errorf("expected heading match with body 'text\\nmore', got %q (found=%v)", body, ok)
	}
}

func TestExtractSectionRunsToEnd(t *testing.T) {
	body, ok := rag.ExtractSection("1. **Notes**: below\nfirst\n\nsecond\n", rag.SectionNotes)
	if !ok || body != "first\n\nsecond" {
		t.Errorf("expected 'first\\n\\nsecond', got %q (found=%v)", body, ok)
	}
}

func TestDeriveReferencedPages(t *testing.T) {
	results := []api.SearchResult{
		{Chunk: api.Chunk{ID: 4, PageNumber: 7}},
		{Chunk: api.Chunk{ID: 1, PageNumber: 2}},
		{Chunk: api.Chunk{ID: 5, PageNumber: 7}},
		{Chunk: api.Chunk{ID: 2, PageNumber: 3}},
		{Chunk: api.Chunk{ID: 3, PageNumber: 2}},
	}

	got := rag.DeriveReferencedPages(results)
	expected := []int{2, 3, 7}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}

	distinct := make(map[int]struct{})
	for _, r := range results {
		distinct[r.PageNumber] = struct{}{}
	}
	if len(distinct) != len(got) {
		t.Errorf("expected %d distinct pages, got %d", len(distinct), len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Errorf("pages not strictly ascending: %v", got)
		}
	}
}

func TestDeriveReferencedPagesEmpty(t *testing.T) {
	if got := rag.DeriveReferencedPages(nil); len(got) != 0 {
		t.Errorf("expected no pages, got %v", got)
	}
}
