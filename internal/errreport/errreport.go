package errreport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

type Options struct {
	DSN         string
	Environment string
	Release     string
}

// Reporter forwards unexpected errors to Sentry. The zero value and a
// reporter built without DSN drop everything.
type Reporter struct {
	hub *sentry.Hub
}

func New(opts Options) (*Reporter, error) {
	dsn := strings.TrimSpace(opts.DSN)
	if dsn == "" {
		return &Reporter{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: strings.TrimSpace(opts.Environment),
		Release:     strings.TrimSpace(opts.Release),
	})
	if err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// Capture sends err with tags attached. Empty tag values are skipped.
func (r *Reporter) Capture(_ context.Context, err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			if strings.TrimSpace(v) == "" {
				continue
			}
			scope.SetTag(k, v)
		}
		r.hub.CaptureException(err)
	})
}

// Flush waits up to timeout for queued events.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}
