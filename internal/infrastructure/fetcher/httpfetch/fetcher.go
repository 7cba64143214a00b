package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/webrag/internal/core/domain"
	"github.com/kirillkom/webrag/internal/infrastructure/resilience"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 10 * 1024 * 1024
	maxRedirects        = 5
)

// DelayResolver supplies the per-domain crawl delay, normally the robots gate.
type DelayResolver interface {
	CrawlDelay(ctx context.Context, rawURL string) time.Duration
}

// Renderer loads a page in a headless browser and returns the settled DOM.
type Renderer interface {
	Render(ctx context.Context, rawURL string) ([]byte, error)
}

// AttemptObserver is told about every HTTP attempt, including retries.
type AttemptObserver interface {
	ObserveFetchAttempt(outcome string)
}

type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	Retry        resilience.Config
	Delays       DelayResolver
	Renderer     Renderer
	Observer     AttemptObserver
	HTTPClient   *http.Client
}

type Fetcher struct {
	client       *http.Client
	userAgent    string
	timeout      time.Duration
	maxBodyBytes int64
	executor     *resilience.Executor
	pacer        *Pacer
	delays       DelayResolver
	renderer     Renderer
	observer     AttemptObserver
}

func New(opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	return &Fetcher{
		client:       client,
		userAgent:    opts.UserAgent,
		timeout:      timeout,
		maxBodyBytes: maxBody,
		executor:     resilience.NewExecutor(opts.Retry),
		pacer:        NewPacer(),
		delays:       opts.Delays,
		renderer:     opts.Renderer,
		observer:     opts.Observer,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*domain.Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch", fmt.Errorf("invalid url %q", rawURL))
	}
	host := strings.ToLower(u.Host)

	var page *domain.Page
	call := func(ctx context.Context) error {
		if err := f.pace(ctx, rawURL, host); err != nil {
			return err
		}
		p, err := f.fetchOnce(ctx, rawURL)
		f.observe(err)
		if err != nil {
			return err
		}
		page = p
		return nil
	}

	// Breakers are keyed per host.
	if err := f.executor.Execute(ctx, "fetch:"+host, call, classifyFetchError); err != nil {
		return nil, toFetchError(rawURL, err)
	}

	if f.renderer != nil && needsRendering(page.Body, page.ContentType) {
		f.render(ctx, rawURL, host, page)
	}
	return page, nil
}

func (f *Fetcher) pace(ctx context.Context, rawURL, host string) error {
	if f.delays == nil {
		return nil
	}
	if err := f.pacer.Wait(ctx, host, f.delays.CrawlDelay(ctx, rawURL)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &domain.FetchError{Kind: domain.FetchTimeout, URL: rawURL, Err: err}
	}
	return nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*domain.Page, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchUnknown, URL: rawURL, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,application/pdf;q=0.8,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.FetchError{Kind: kindForTransportError(err), URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &domain.FetchError{
			Kind:       kindForStatus(resp.StatusCode),
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("status %s", resp.Status),
		}
	}

	contentType := mediaType(resp.Header.Get("Content-Type"))
	if !supportedContentType(contentType) {
		return nil, &domain.FetchError{
			Kind:       domain.FetchBlocked,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unsupported content type %q", contentType),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &domain.FetchError{Kind: kindForTransportError(err), URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, &domain.FetchError{
			Kind:       domain.FetchBlocked,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("page exceeds %d bytes", f.maxBodyBytes),
		}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &domain.Page{
		URL:         rawURL,
		FinalURL:    finalURL,
		Body:        body,
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func (f *Fetcher) render(ctx context.Context, rawURL, host string, page *domain.Page) {
	if err := f.pace(ctx, rawURL, host); err != nil {
		return
	}
	body, err := f.renderer.Render(ctx, rawURL)
	if err != nil {
		slog.Warn("render_failed", "url", rawURL, "error", err)
		return
	}
	page.Body = body
	page.ContentType = "text/html"
	page.Rendered = true
}

func (f *Fetcher) observe(err error) {
	if f.observer == nil {
		return
	}
	if err == nil {
		f.observer.ObserveFetchAttempt("ok")
		return
	}
	var fetchErr *domain.FetchError
	if errors.As(err, &fetchErr) {
		f.observer.ObserveFetchAttempt(string(fetchErr.Kind))
		return
	}
	f.observer.ObserveFetchAttempt("error")
}

func mediaType(header string) string {
	if header == "" {
		return "text/html"
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
	}
	return mt
}

func supportedContentType(mt string) bool {
	switch mt {
	case "text/html", "application/xhtml+xml", "text/plain", "text/markdown", "application/pdf":
		return true
	default:
		return false
	}
}
