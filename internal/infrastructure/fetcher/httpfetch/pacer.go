package httpfetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces requests per host. Each host gets its own limiter so delays
// on one domain never hold back another.
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewPacer() *Pacer {
	return &Pacer{limiters: make(map[string]*rate.Limiter)}
}

func (p *Pacer) Wait(ctx context.Context, host string, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	return p.limiter(host, delay).Wait(ctx)
}

func (p *Pacer) limiter(host string, delay time.Duration) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	limit := rate.Every(delay)
	if lim, ok := p.limiters[host]; ok {
		if lim.Limit() != limit {
			lim.SetLimit(limit)
		}
		return lim
	}
	lim := rate.NewLimiter(limit, 1)
	p.limiters[host] = lim
	return lim
}
