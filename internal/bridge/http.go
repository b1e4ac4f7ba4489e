package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"lv-tradecore/internal/apperr"
	"lv-tradecore/internal/logging"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var bridgeLog = logging.Component("bridge")

type HTTPConfig struct {
	URL           string
	ServiceSecret string
	Timeout       time.Duration
	MaxAttempts   int
	Backoff       time.Duration
	RatePerSecond float64
	Burst         int
}

// HTTPAdapter posts intents as JSON to the provider's intake endpoint,
// authenticated with a short-lived HS256 service token.
type HTTPAdapter struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func NewHTTPAdapter(cfg HTTPConfig) *HTTPAdapter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &HTTPAdapter{
		cfg:     cfg,
		client:  &http.Client{},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		now:     time.Now,
	}
}

func (a *HTTPAdapter) Send(ctx context.Context, intent Intent) error {
	body, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	err = retry(ctx, a.cfg.MaxAttempts, a.cfg.Backoff, func() error {
		if err := a.limiter.Wait(ctx); err != nil {
			return permanent{err}
		}
		return a.post(ctx, body)
	})
	if err != nil {
		bridgeLog.WithError(err).WithFields(logrus.Fields{
			"intent":         intent.Type,
			"order_id":       intent.OrderID,
			"correlation_id": intent.CorrelationID,
		}).Warn("intent not delivered")
		return apperr.ExternalBridge(err, "send %s intent for order %s", intent.Type, intent.OrderID)
	}
	return nil
}

func (a *HTTPAdapter) post(ctx context.Context, body []byte) error {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}
	token, err := a.serviceToken()
	if err != nil {
		return permanent{err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return permanent{err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("bridge returned %d", resp.StatusCode)
	default:
		return permanent{fmt.Errorf("bridge rejected intent: %d", resp.StatusCode)}
	}
}

func (a *HTTPAdapter) serviceToken() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    "lv-tradecore",
		Subject:   "order-engine",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.ServiceSecret))
}
