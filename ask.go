package main

import (
	"context"
	"time"

	"github.com/profprotonn/protonbot/dispatch"
	"github.com/profprotonn/protonbot/metrics"
)

// timedCompleter bounds the time spent on each completion and records its
// latency.
type timedCompleter struct {
	c dispatch.Completer
	// timeout is the time limit for each completion. Zero means no limit.
	timeout time.Duration
	latency metrics.Observer
}

func (t *timedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	start := time.Now()
	s, err := t.c.Complete(ctx, prompt)
	t.latency.Observe(time.Since(start).Seconds())
	return s, err
}
