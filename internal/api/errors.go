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

package api

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady    = errors.New("no corpus loaded")
	ErrInvalidPage = errors.New("invalid page number")
	ErrEmptyInput  = errors.New("empty input")
	ErrDependency  = errors.New("dependency failure")
)

// NotReadyError is returned when an operation needs a corpus but none
// has been built or restored yet.
type NotReadyError struct {
	Op string
}

func (e NotReadyError) Error() string {
	if e.Op == "" {
		return ErrNotReady.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, ErrNotReady)
}

func (e NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

type InvalidPageError struct {
	Page  int
	Total int
}

func (e InvalidPageError) Error() string {
	return fmt.Sprintf("page %d out of range [1, %d]", e.Page, e.Total)
}

func (e InvalidPageError) Is(target error) bool {
	return target == ErrInvalidPage
}

type EmptyInputError struct {
	Field string
}

func (e EmptyInputError) Error() string {
	return fmt.Sprintf("%s must not be empty", e.Field)
}

func (e EmptyInputError) Is(target error) bool {
	return target == ErrEmptyInput
}

// DependencyError wraps a failure of an external collaborator such as
// the embedder, the vector index or the generator.
type DependencyError struct {
	Dependency string
	Op         string
	Cause      error
}

func (e DependencyError) Error() string {
	return fmt.Sprintf("%s failed during %s: %v", e.Dependency, e.Op, e.Cause)
}

func (e DependencyError) Unwrap() error {
	return e.Cause
}

func (e DependencyError) Is(target error) bool {
	return target == ErrDependency
}
