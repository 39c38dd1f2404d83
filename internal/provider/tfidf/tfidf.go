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

// Package tfidf provides an offline embedder. Its vector space is the
// vocabulary of the corpus it was fitted on, so a fitted Model belongs to
// exactly one corpus.
package tfidf

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/alan-mat/pdfqa/internal/api"
)

var (
	ErrNotFitted   = errors.New("tfidf vectorizer has not been fitted")
	ErrEmptyCorpus = errors.New("cannot fit tfidf on an empty corpus")
	ErrNoTerms     = errors.New("no terms found in corpus")
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)

// Vectorizer is the unfitted embedder. Fit derives a Model from the chunk
// texts of a corpus.
type Vectorizer struct {
	stopwords map[string]struct{}
}

func New() *Vectorizer {
	return &Vectorizer{
		stopwords: defaultStopwords(),
	}
}

func (v Vectorizer) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	return nil, ErrNotFitted
}

func (v Vectorizer) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	return nil, ErrNotFitted
}

func (v Vectorizer) GetDimensions() uint {
	return 0
}

// Fit builds the vocabulary and smoothed idf weights. The result depends
// only on the texts, so refitting the same texts yields the same model.
func (v Vectorizer) Fit(texts []string) (*Model, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyCorpus
	}

	df := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]struct{})
		for _, tok := range v.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	if len(df) == 0 {
		return nil, ErrNoTerms
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	m := &Model{
		vectorizer: v,
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float64, len(terms)),
	}
	n := float64(len(texts))
	for i, term := range terms {
		m.vocabulary[term] = i
		m.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}

	return m, nil
}

func (v Vectorizer) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := v.stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

type Model struct {
	vectorizer Vectorizer
	vocabulary map[string]int
	idf        []float64
}

func (m Model) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	return m.embed(q), nil
}

func (m Model) EmbedDocuments(ctx context.Context, docs []*api.EmbedDocumentRequest) ([]*api.DocumentEmbedding, error) {
	embeddings := make([]*api.DocumentEmbedding, 0, len(docs))
	for _, doc := range docs {
		values := make([][]float32, 0, len(doc.Chunks))
		for _, chunk := range doc.Chunks {
			values = append(values, m.embed(chunk))
		}
		embeddings = append(embeddings, &api.DocumentEmbedding{
			Title:  doc.Title,
			Chunks: doc.Chunks,
			Values: values,
		})
	}
	return embeddings, nil
}

func (m Model) GetDimensions() uint {
	return uint(len(m.idf))
}

// embed returns the l2 normalised tf-idf vector of text. Texts without
// known terms map to the zero vector.
func (m Model) embed(text string) []float32 {
	vec := make([]float64, len(m.idf))

	tf := make(map[int]int)
	total := 0
	for _, tok := range m.vectorizer.tokenize(text) {
		if idx, ok := m.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}

	out := make([]float32, len(vec))
	if total == 0 {
		return out
	}

	norm := 0.0
	for idx, count := range tf {
		vec[idx] = float64(count) / float64(total) * m.idf[idx]
		norm += vec[idx] * vec[idx]
	}
	norm = math.Sqrt(norm)

	for i, val := range vec {
		out[i] = float32(val / norm)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on",
		"at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this",
		"that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than",
		"so", "such", "into", "about", "between", "through", "during", "before", "after", "above",
		"below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
