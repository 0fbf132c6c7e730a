package search

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/coopportal/coopsearch/pkg/rbac"
)

var (
	// ErrCooperativeNotFound is returned when a COOPERATIVE_ADMIN's cooperative cannot be resolved
	ErrCooperativeNotFound = errors.New("cooperative not found")

	// ErrInvalidRequest is returned for malformed search requests
	ErrInvalidRequest = errors.New("invalid search request")
)

// CategoryError is the failure of a single adapter
type CategoryError struct {
	Category rbac.Category
	Err      error
}

func (e *CategoryError) Error() string {
	return fmt.Sprintf("%s search failed: %v", e.Category, e.Err)
}

func (e *CategoryError) Unwrap() error {
	return e.Err
}

// AggregateError reports a search that produced no usable category. Either every
// executed adapter failed (Failures) or orchestration failed outside the adapters (Cause).
type AggregateError struct {
	Failures map[rbac.Category]error
	Cause    error
}

func (e *AggregateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("search failed: %v", e.Cause)
	}

	cats := make([]string, 0, len(e.Failures))
	for c := range e.Failures {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	return fmt.Sprintf("search failed: all %d categories failed (%s)", len(cats), strings.Join(cats, ", "))
}

func (e *AggregateError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Cause}
	}
	errs := make([]error, 0, len(e.Failures))
	for _, c := range rbac.Categories() {
		if err, ok := e.Failures[c]; ok {
			errs = append(errs, err)
		}
	}
	return errs
}
