package connection

import (
	"context"
	"log/slog"
	"time"

	"github.com/dsiportal/placement-sync/internal/httpclient"
)

// Probe produces network online/offline signals.
type Probe interface {
	// Run calls report with the current state and again on every change
	// until ctx is done.
	Run(ctx context.Context, report func(online bool)) error
}

// StaticProbe always reports online.
type StaticProbe struct{}

// Run implements Probe.
func (StaticProbe) Run(ctx context.Context, report func(online bool)) error {
	report(true)
	<-ctx.Done()
	return nil
}

// HTTPProbe considers the network online while GET requests to URL succeed.
type HTTPProbe struct {
	URL      string
	Interval time.Duration
	Client   httpclient.Client
}

// NewHTTPProbe returns a probe of url. Each request is bounded by interval.
func NewHTTPProbe(url string, interval time.Duration) *HTTPProbe {
	return &HTTPProbe{
		URL:      url,
		Interval: interval,
		Client:   httpclient.NewDefaultClient(interval),
	}
}

// Run implements Probe. Only changes are reported after the first check.
func (p *HTTPProbe) Run(ctx context.Context, report func(online bool)) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	last := p.check(ctx)
	report(last)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			online := p.check(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if online != last {
				last = online
				report(online)
			}
		}
	}
}

func (p *HTTPProbe) check(ctx context.Context) bool {
	_, err := p.Client.Get(ctx, p.URL)
	if err != nil {
		if status := httpclient.StatusOf(err); status != 0 {
			slog.Debug("Network probe target unhealthy", "url", p.URL, "status", status)
		} else {
			slog.Debug("Network probe failed", "url", p.URL, "error", err)
		}
		return false
	}
	return true
}
