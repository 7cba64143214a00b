package robots

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/webrag/internal/core/domain"
)

const maxRobotsBytes = 512 * 1024

type Options struct {
	UserAgent    string
	FailOpen     bool
	DefaultDelay time.Duration
	MaxDelay     time.Duration
	HTTPClient   *http.Client
}

// Gate resolves robots.txt once per scheme://host and keeps the result for
// the lifetime of the process.
type Gate struct {
	client       *http.Client
	userAgent    string
	agent        string
	failOpen     bool
	defaultDelay time.Duration
	maxDelay     time.Duration

	mu    sync.RWMutex
	sites map[string]*siteRules
	group singleflight.Group
}

type siteRules struct {
	policy domain.SitePolicy
	group  *robotstxt.Group
}

func NewGate(opts Options) *Gate {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	defaultDelay := opts.DefaultDelay
	if defaultDelay < 0 {
		defaultDelay = 0
	}
	if defaultDelay > maxDelay {
		defaultDelay = maxDelay
	}
	return &Gate{
		client:       client,
		userAgent:    opts.UserAgent,
		agent:        productToken(opts.UserAgent),
		failOpen:     opts.FailOpen,
		defaultDelay: defaultDelay,
		maxDelay:     maxDelay,
		sites:        make(map[string]*siteRules),
	}
}

func (g *Gate) IsAllowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := parseTarget(rawURL)
	if err != nil {
		return false, err
	}
	rules := g.load(ctx, siteKey(u))
	switch {
	case rules.policy.DenyAll:
		return false, nil
	case rules.policy.AllowAll || rules.group == nil:
		return true, nil
	default:
		return rules.group.Test(u.RequestURI()), nil
	}
}

func (g *Gate) Policy(ctx context.Context, rawURL string) (domain.SitePolicy, error) {
	u, err := parseTarget(rawURL)
	if err != nil {
		return domain.SitePolicy{}, err
	}
	return g.load(ctx, siteKey(u)).policy, nil
}

// CrawlDelay is the spacing between consecutive requests to the URL's domain.
func (g *Gate) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	policy, err := g.Policy(ctx, rawURL)
	if err != nil {
		return g.defaultDelay
	}
	return policy.CrawlDelay
}

func (g *Gate) load(ctx context.Context, key string) *siteRules {
	if rules, ok := g.cached(key); ok {
		return rules
	}

	v, _, _ := g.group.Do(key, func() (any, error) {
		if rules, ok := g.cached(key); ok {
			return rules, nil
		}
		rules := g.fetch(ctx, key)
		if ctx.Err() == nil {
			g.mu.Lock()
			g.sites[key] = rules
			g.mu.Unlock()
		}
		return rules, nil
	})
	return v.(*siteRules)
}

func (g *Gate) cached(key string) (*siteRules, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rules, ok := g.sites[key]
	return rules, ok
}

func (g *Gate) fetch(ctx context.Context, key string) *siteRules {
	robotsURL := key + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return g.unreachable(key, err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return g.unreachable(key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		slog.Info("robots_absent", "site", key, "status", resp.StatusCode)
		return &siteRules{policy: g.newPolicy(key, domain.PolicyAbsent, 0, true, false)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return g.unreachable(key, fmt.Errorf("robots status: %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return g.unreachable(key, fmt.Errorf("read robots body: %w", err))
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return g.unreachable(key, fmt.Errorf("parse robots: %w", err))
	}

	group := data.FindGroup(g.agent)
	var delay time.Duration
	if group != nil {
		delay = group.CrawlDelay
	}
	policy := g.newPolicy(key, domain.PolicyFromRobots, delay, false, false)
	slog.Info("robots_fetched", "site", key, "crawl_delay_ms", policy.CrawlDelay.Milliseconds())
	return &siteRules{policy: policy, group: group}
}

func (g *Gate) unreachable(key string, err error) *siteRules {
	slog.Warn("robots_unreachable", "site", key, "fail_open", g.failOpen, "error", err)
	return &siteRules{policy: g.newPolicy(key, domain.PolicyUnreachable, 0, g.failOpen, !g.failOpen)}
}

func (g *Gate) newPolicy(key string, source domain.PolicySource, delay time.Duration, allowAll, denyAll bool) domain.SitePolicy {
	return domain.SitePolicy{
		Domain:     key,
		Source:     source,
		AllowAll:   allowAll,
		DenyAll:    denyAll,
		CrawlDelay: g.clampDelay(delay),
		FetchedAt:  time.Now().UTC(),
	}
}

func (g *Gate) clampDelay(d time.Duration) time.Duration {
	if d < g.defaultDelay {
		return g.defaultDelay
	}
	if d > g.maxDelay {
		return g.maxDelay
	}
	return d
}

func parseTarget(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse url", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse url", fmt.Errorf("unsupported url %q", rawURL))
	}
	return u, nil
}

func siteKey(u *url.URL) string {
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// productToken reduces "webrag/1.0 (+https://...)" to "webrag" for group matching.
func productToken(userAgent string) string {
	token := strings.TrimSpace(userAgent)
	if i := strings.IndexAny(token, "/ "); i > 0 {
		token = token[:i]
	}
	if token == "" {
		return "*"
	}
	return token
}
