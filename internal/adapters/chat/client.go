package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"comanda/pkg/errors"
	"comanda/pkg/logger"
)

// Config contains chat gateway client configuration
type Config struct {
	GatewayURL     string
	Token          string
	HTTPTimeout    time.Duration
	RateLimitRate  int // messages per second
	RateLimitBurst int
}

// Client sends outbound messages through the gateway HTTP API.
// Sends are rate limited so a burst of replies cannot trip the
// gateway's own limits.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	log         *logger.Logger
}

// NewClient creates a gateway client
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.GatewayURL == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "chat gateway URL is required")
	}

	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	if cfg.RateLimitRate == 0 {
		cfg.RateLimitRate = 20
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 30
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		baseURL:     cfg.GatewayURL,
		token:       cfg.Token,
		httpClient:  httpClient,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRate), cfg.RateLimitBurst),
		log:         log.With("component", "chat_client"),
	}, nil
}

// SendMessage delivers one outbound message. It blocks on the rate
// limiter, so callers should pass a bounded context.
func (c *Client) SendMessage(ctx context.Context, senderID string, text string) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait")
	}

	body, err := json.Marshal(OutboundMessage{SenderID: senderID, Text: text})
	if err != nil {
		return errors.Wrap(err, "marshal outbound message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "send message via gateway")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return errors.Wrapf(errors.ErrUnavailable, "gateway returned status %d", resp.StatusCode)
	}

	c.log.Debugw("Message sent", "sender_id", senderID, "chars", len(text))
	return nil
}
