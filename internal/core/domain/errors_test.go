package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOfMapsTaxonomy(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"policy", WrapError(ErrPolicyDenied, "crawl", errors.New("disallowed")), KindPolicyDenied},
		{"fetch timeout", &FetchError{Kind: FetchTimeout, URL: "https://a"}, ErrorKind("Timeout")},
		{"wrapped fetch", fmt.Errorf("fetch page: %w", &FetchError{Kind: FetchNotFound, URL: "https://a", StatusCode: 404}), ErrorKind("NotFound")},
		{"extraction", &ExtractionError{Kind: ExtractionNoContentFound, URL: "https://a"}, KindNoContentFound},
		{"embedding", WrapError(ErrEmbedding, "embed", errors.New("boom")), KindEmbeddingFailed},
		{"invalid", WrapError(ErrInvalidInput, "parse url", errors.New("bad")), KindInvalidURL},
		{"canceled", fmt.Errorf("fetch: %w", context.Canceled), KindCanceled},
		{"other", errors.New("boom"), KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("%s: KindOf() = %q, want %q", tc.name, got, tc.want)
		}
	}
	if KindOf(nil) != "" {
		t.Fatalf("expected empty kind for nil error")
	}
}

func TestFetchErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("stage: %w", &FetchError{Kind: FetchBlocked, URL: "https://a", StatusCode: 403})
	if !IsKind(err, ErrFetch) {
		t.Fatalf("expected ErrFetch match for %v", err)
	}
	if IsKind(err, ErrExtraction) {
		t.Fatalf("unexpected ErrExtraction match")
	}
	if !FetchTimeout.Transient() || !FetchUnavailable.Transient() {
		t.Fatalf("timeout and unavailable must be transient")
	}
	if FetchNotFound.Transient() || FetchBlocked.Transient() || FetchUnknown.Transient() {
		t.Fatalf("terminal kinds reported as transient")
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(WrapError(ErrIndexWrite, "flush", errors.New("disk full"))) {
		t.Fatalf("index write must be fatal")
	}
	if !IsFatal(WrapError(ErrEmbeddingModelMismatch, "open", errors.New("a != b"))) {
		t.Fatalf("model mismatch must be fatal")
	}
	if IsFatal(&FetchError{Kind: FetchTimeout}) {
		t.Fatalf("fetch errors are per-url")
	}
}
