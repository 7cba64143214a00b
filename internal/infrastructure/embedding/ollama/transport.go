package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrInputRejected matches an APIError for a batch the server refused to
// embed, such as text longer than the model's context.
var ErrInputRejected = errors.New("embedding input rejected")

// APIError is a non-2xx answer from the Ollama API. Message holds the
// "error" field of the JSON body, or the raw body when it is not JSON.
type APIError struct {
	Operation  string
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return "ollama api error"
	}
	if e.Message == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrInputRejected && e.InputRejected()
}

// InputRejected reports a batch-specific refusal; other batches may still embed.
func (e *APIError) InputRejected() bool {
	if e.StatusCode == http.StatusRequestEntityTooLarge {
		return true
	}
	if e.StatusCode != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "input length") ||
		strings.Contains(msg, "context length") ||
		strings.Contains(msg, "too long")
}

// ModelMissing reports that the configured embedding model is not pulled.
func (e *APIError) ModelMissing() bool {
	if e.StatusCode == http.StatusNotFound {
		return true
	}
	return e.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Message), "not found")
}

func (e *APIError) transient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newAPIError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func newAPIError(operation string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	message := strings.TrimSpace(string(raw))

	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
		message = envelope.Error
	}
	return &APIError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    message,
	}
}
