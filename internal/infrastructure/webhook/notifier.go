// Package webhook delivers record notifications to tenant endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

const (
	TimestampHeader = "X-Unihub-Timestamp"
	EventHeader     = "X-Unihub-Event"
	DeliveryHeader  = "X-Unihub-Delivery"
)

// ErrDeliveryFailed wraps every endpoint that did not answer 2xx.
var ErrDeliveryFailed = errors.New("webhook delivery failed")

// Envelope is the JSON body posted to subscribers.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	TenantID  string          `json:"tenant_id"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// HTTPNotifier posts signed notifications to every subscribed endpoint of
// the tenant.
type HTTPNotifier struct {
	endpoints       unified.WebhookEndpointRepository
	httpClient      *http.Client
	signatureHeader string
	userAgent       string
	logger          *zap.Logger
	now             func() time.Time
}

func NewHTTPNotifier(endpoints unified.WebhookEndpointRepository, cfg config.WebhookConfig, logger *zap.Logger) *HTTPNotifier {
	header := cfg.SignatureHeader
	if header == "" {
		header = "X-Unihub-Signature"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNotifier{
		endpoints:       endpoints,
		httpClient:      &http.Client{Timeout: timeout},
		signatureHeader: header,
		userAgent:       cfg.UserAgent,
		logger:          logger,
		now:             time.Now,
	}
}

// Dispatch delivers n to each subscriber in turn. Every endpoint is tried;
// the failures are joined so the outbox retries the whole notification.
func (h *HTTPNotifier) Dispatch(ctx context.Context, n unified.Notification) error {
	targets, err := h.endpoints.Subscribed(ctx, n.TenantID, n.EventType)
	if err != nil {
		return fmt.Errorf("load webhook endpoints: %w", err)
	}
	if len(targets) == 0 {
		return nil
	}

	now := h.now().UTC()
	body, err := json.Marshal(Envelope{
		ID:        n.CorrelationID.String(),
		Type:      n.EventType,
		TenantID:  n.TenantID.String(),
		CreatedAt: now,
		Data:      n.Record,
	})
	if err != nil {
		return fmt.Errorf("encode webhook: %w", err)
	}
	ts := strconv.FormatInt(now.Unix(), 10)

	var errs []error
	for _, ep := range targets {
		if err := h.post(ctx, ep, n, ts, body); err != nil {
			h.logger.Warn("webhook delivery failed",
				zap.String("endpoint_id", ep.ID.String()),
				zap.String("event_type", n.EventType),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		h.logger.Debug("webhook delivered",
			zap.String("endpoint_id", ep.ID.String()),
			zap.String("event_type", n.EventType),
		)
	}
	return errors.Join(errs...)
}

func (h *HTTPNotifier) post(ctx context.Context, ep *unified.WebhookEndpoint, n unified.Notification, ts string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeliveryFailed, ep.URL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, n.EventType)
	req.Header.Set(DeliveryHeader, n.CorrelationID.String())
	req.Header.Set(TimestampHeader, ts)
	req.Header.Set(h.signatureHeader, Sign(ep.Secret, ts, body))
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeliveryFailed, ep.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: HTTP %d", ErrDeliveryFailed, ep.URL, resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of timestamp, a newline and body.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("\n"))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign. Subscribers written in Go
// can use it directly.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}

var _ unified.Notifier = (*HTTPNotifier)(nil)
