package httpfetch

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/infrastructure/resilience"
)

func kindForStatus(statusCode int) domain.FetchErrorKind {
	switch {
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return domain.FetchTimeout
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return domain.FetchUnavailable
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return domain.FetchNotFound
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden || statusCode == http.StatusUnavailableForLegalReasons:
		return domain.FetchBlocked
	default:
		return domain.FetchUnknown
	}
}

// kindForTransportError maps a client.Do failure. attemptCtx carries the
// per-attempt timeout; parent cancellation is handled by the caller.
func kindForTransportError(err error) domain.FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FetchTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return domain.FetchNotFound
		}
		if dnsErr.IsTimeout {
			return domain.FetchTimeout
		}
		return domain.FetchUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.FetchTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.FetchUnavailable
	}
	return domain.FetchUnknown
}

func classifyFetchError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		transient := fetchErr.Kind.Transient()
		return resilience.ErrorClassification{
			Retryable:     transient,
			RecordFailure: transient,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

func toFetchError(rawURL string, err error) error {
	if err == nil {
		return nil
	}
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if resilience.IsCircuitOpen(err) {
		return &domain.FetchError{Kind: domain.FetchUnavailable, URL: rawURL, Err: err}
	}
	return &domain.FetchError{Kind: domain.FetchUnknown, URL: rawURL, Err: err}
}
