// Package notify
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v3"
	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/types"
)

// WebhookSink POSTs events as JSON. Transient failures (network errors,
// 5xx) are retried with exponential backoff; 4xx responses are not.
type WebhookSink struct {
	url     string
	retries int
	client  *http.Client

	logger *zap.Logger
}

type WebhookConfig struct {
	URL     string
	Retries int
	Timeout time.Duration

	Logger *zap.Logger
}

func NewWebhookSink(cfg WebhookConfig) *WebhookSink {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	netTransport := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: cfg.Timeout,
		}).Dial,
		TLSHandshakeTimeout: cfg.Timeout,
	}
	return &WebhookSink{
		url:     cfg.URL,
		retries: cfg.Retries,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: netTransport,
		},
		logger: cfg.Logger,
	}
}

func (s *WebhookSink) Name() string {
	return "webhook"
}

func (s *WebhookSink) Deliver(ctx context.Context, event types.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("webhook rejected event with %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.retries-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		s.logger.Debug("webhook delivery failed", zap.String("event", string(event.Type)), zap.Error(err))
		return err
	}
	return nil
}
