package httpfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// RenderClient asks a headless-browser service (browserless-compatible
// /content endpoint) for the DOM after the network has gone idle.
type RenderClient struct {
	endpoint   string
	httpClient *http.Client
	maxBytes   int64
}

func NewRenderClient(endpoint string, timeout time.Duration) *RenderClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RenderClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   defaultMaxBodyBytes,
	}
}

func (c *RenderClient) Render(ctx context.Context, rawURL string) ([]byte, error) {
	payload := map[string]any{
		"url": rawURL,
		"gotoOptions": map[string]any{
			"waitUntil": "networkidle0",
			"timeout":   c.httpClient.Timeout.Milliseconds(),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/content", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if text := strings.TrimSpace(string(msg)); text != "" {
			return nil, fmt.Errorf("render status: %s: %s", resp.Status, text)
		}
		return nil, fmt.Errorf("render status: %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
}

var shellMarkers = []string{
	`id="root"`,
	`id="app"`,
	`id="__next"`,
	`id="__nuxt"`,
	`data-reactroot`,
	`ng-version=`,
	`window.__INITIAL_STATE__`,
}

const minStaticText = 500

// needsRendering reports an HTML shell whose content is produced client-side:
// a framework mount point with little visible text.
func needsRendering(body []byte, contentType string) bool {
	if contentType != "text/html" && contentType != "application/xhtml+xml" {
		return false
	}
	lower := strings.ToLower(string(body))
	marked := false
	for _, marker := range shellMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			marked = true
			break
		}
	}
	return marked && visibleTextLength(body) < minStaticText
}

func visibleTextLength(body []byte) int {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	skipDepth := 0
	total := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return total
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if skipDepth == 0 {
				total += len(strings.TrimSpace(string(tokenizer.Text())))
			}
		}
	}
}
