package llm

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthPing verifies the Gemini API is reachable with the configured key by
// listing a single model. It exercises auth without spending generation quota.
func (c *Client) HealthPing(ctx context.Context) error {
	key := c.pickKey()
	var out generateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", key).
		SetQueryParam("pageSize", "1").
		SetError(&out).
		Get("/v1beta/models")
	if err != nil {
		return err
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil {
			msg = fmt.Sprintf("%s: %s", out.Error.Status, out.Error.Message)
		}
		return &apiError{status: resp.StatusCode(), msg: msg}
	}
	return nil
}

// HealthChecker monitors resolver availability with periodic API pings.
type HealthChecker struct {
	client       *Client
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

func NewHealthChecker(client *Client, log zerolog.Logger, probeTimeout time.Duration) *HealthChecker {
	hc := &HealthChecker{client: client, log: log, probeTimeout: probeTimeout}
	hc.healthy.Store(0) // unhealthy until the first successful probe
	return hc
}

func (hc *HealthChecker) Name() string { return "resolver" }

// IsHealthy returns the cached health status (non-blocking).
func (hc *HealthChecker) IsHealthy() bool { return hc.healthy.Load() == 1 }

// Start begins periodic health checking until ctx is cancelled.
func (hc *HealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check := func() {
		to := hc.probeTimeout
		if to <= 0 {
			to = 2 * time.Second
		}
		checkCtx, cancel := context.WithTimeout(ctx, to)
		defer cancel()

		if err := hc.client.HealthPing(checkCtx); err != nil {
			hc.log.Error().Str("checker", hc.Name()).Err(err).Msg("resolver health check failed")
			hc.healthy.Store(0)
			return
		}
		hc.healthy.Store(1)
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
