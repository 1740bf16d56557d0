package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"pdsno.io/controller/internal/envelope"
	apperrors "pdsno.io/controller/internal/pkg/errors"
	"pdsno.io/controller/internal/pkg/logger"
)

// HTTPConfig configures the retrying HTTP request/response carrier.
type HTTPConfig struct {
	BaseURL      string
	RequestTimeout time.Duration
	MaxAttempts  int
	BaseDelay    time.Duration
}

// HTTPDispatcher sends an envelope as a POST /message/:type to a peer
// controller's endpoint, retrying transient failures with exponential
// backoff and jitter. Idempotent message types (transport.Idempotent) are
// retried after a transport error, an unreadable reply, or a 5xx status;
// non-idempotent types are sent once and never retried.
type HTTPDispatcher struct {
	client *http.Client
	cfg    HTTPConfig
}

// NewHTTPDispatcher creates an HTTP-based dispatcher targeting cfg.BaseURL.
func NewHTTPDispatcher(cfg HTTPConfig) *HTTPDispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &HTTPDispatcher{
		client: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:    cfg,
	}
}

// Send implements Dispatcher.
func (d *HTTPDispatcher) Send(ctx context.Context, e *envelope.Envelope) (*envelope.Envelope, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/message/%s", d.cfg.BaseURL, e.MessageType)

	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if !Idempotent(e.MessageType) {
				break
			}
			if err := sleepBackoff(ctx, d.cfg.BaseDelay, attempt); err != nil {
				return nil, err
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			cancel()
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			cancel()
			lastErr = apperrors.Wrap(err, apperrors.CodeTransportTimeout, "transport request failed", 503)
			logger.Warn("transport send attempt failed",
				zap.String("message_type", e.MessageType),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		reply, err := readReply(resp)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = apperrors.New(apperrors.CodeTransportUnavailable, "peer returned server error", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, apperrors.New(apperrors.CodeEnvelopeMalformed, "peer rejected envelope", resp.StatusCode)
		}
		return reply, nil
	}

	return nil, lastErr
}

func readReply(resp *http.Response) (*envelope.Envelope, error) {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	var reply envelope.Envelope
	if err := json.Unmarshal(b, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// sleepBackoff waits base * 2^(attempt-1) plus jitter, bailing out early if
// ctx is cancelled.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	delay := base << uint(attempt-1)
	jitter := time.Duration(rand.Int63n(int64(base)))
	select {
	case <-time.After(delay + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
