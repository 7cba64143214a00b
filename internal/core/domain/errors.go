package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrTemporary              = errors.New("temporary failure")
	ErrPolicyDenied           = errors.New("policy denied")
	ErrFetch                  = errors.New("fetch failed")
	ErrExtraction             = errors.New("extraction failed")
	ErrEmbedding              = errors.New("embedding failed")
	ErrEmbeddingModelMismatch = errors.New("embedding model mismatch")
	ErrIndexWrite             = errors.New("index write failed")
	ErrEmptyStore             = errors.New("vector store is empty")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

type FetchErrorKind string

const (
	FetchTimeout     FetchErrorKind = "Timeout"
	FetchBlocked     FetchErrorKind = "Blocked"
	FetchNotFound    FetchErrorKind = "NotFound"
	FetchUnavailable FetchErrorKind = "Unavailable"
	FetchUnknown     FetchErrorKind = "Unknown"
)

// Transient reports whether another attempt may succeed.
func (k FetchErrorKind) Transient() bool {
	return k == FetchTimeout || k == FetchUnavailable
}

type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "fetch error"
	}
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

type ExtractionErrorKind string

const ExtractionNoContentFound ExtractionErrorKind = "NoContentFound"

type ExtractionError struct {
	Kind ExtractionErrorKind
	URL  string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.URL, e.Kind)
}

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// ErrorKind is the label written to the run summary for a failed URL.
type ErrorKind string

const (
	KindPolicyDenied    ErrorKind = "PolicyDenied"
	KindNoContentFound  ErrorKind = "NoContentFound"
	KindEmbeddingFailed ErrorKind = "EmbeddingFailed"
	KindInvalidURL      ErrorKind = "InvalidURL"
	KindCanceled        ErrorKind = "Canceled"
	KindUnknown         ErrorKind = "Unknown"
)

func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var fetchErr *FetchError
	var extractErr *ExtractionError
	switch {
	case errors.Is(err, ErrPolicyDenied):
		return KindPolicyDenied
	case errors.As(err, &fetchErr):
		return ErrorKind(fetchErr.Kind)
	case errors.As(err, &extractErr):
		return ErrorKind(extractErr.Kind)
	case errors.Is(err, ErrEmbedding):
		return KindEmbeddingFailed
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidURL
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// IsFatal reports store-level failures that must halt a run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrIndexWrite) || errors.Is(err, ErrEmbeddingModelMismatch)
}
