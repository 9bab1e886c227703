package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"comanda/internal/domain/customer"
	"comanda/internal/domain/order"
	"comanda/pkg/errors"
	"comanda/pkg/logger"
)

// Config contains orders API client configuration
type Config struct {
	BaseURL     string
	APIKey      string
	CallTimeout time.Duration
}

// Client talks to the external orders/customers CRUD API. Every call
// carries its own timeout so a slow backend cannot stall message
// handling for other parties.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	callTimeout time.Duration
	log         *logger.Logger
}

// NewClient creates an orders API client
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "orders API base URL is required")
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 10 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		callTimeout: cfg.CallTimeout,
		log:         log.With("component", "orders_client"),
	}, nil
}

// SubmitOrder persists a finalized order and returns its identifier.
// Transport and backend failures surface as ErrSubmissionFailed so the
// flow can tell them apart from programming errors.
func (c *Client) SubmitOrder(ctx context.Context, req order.SubmissionRequest) (*order.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal submission request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build submission request")
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrSubmissionFailed, "orders API unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, errors.Wrapf(errors.ErrSubmissionFailed, "orders API returned status %d", resp.StatusCode)
	}

	var receipt order.Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, errors.Wrapf(errors.ErrSubmissionFailed, "decode submission response: %v", err)
	}

	c.log.Infow("Order submitted", "order_id", receipt.OrderID, "phone", req.CustomerPhone)
	return &receipt, nil
}

// GetCustomerByPhone looks up a stored customer profile. Both "not
// found" and "incomplete profile" come back as errors the caller can
// test with errors.Is; either way there is no express path.
func (c *Client) GetCustomerByPhone(ctx context.Context, phone string) (*customer.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/customers/"+url.PathEscape(phone), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build customer request")
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "customers API unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, errors.Wrapf(errors.ErrNotFound, "no customer for phone %s", phone)
	}
	if resp.StatusCode >= 300 {
		return nil, errors.Wrapf(errors.ErrUnavailable, "customers API returned status %d", resp.StatusCode)
	}

	var profile customer.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, errors.Wrap(err, "decode customer profile")
	}
	profile.Phone = phone

	if !profile.Complete() {
		return nil, errors.Wrapf(errors.ErrProfileIncomplete, "profile for %s is missing name or address", phone)
	}

	return &profile, nil
}

// GetLastOrder fetches the party's most recent order for the repeat
// flow. Missing history surfaces as ErrNotFound.
func (c *Client) GetLastOrder(ctx context.Context, phone string) (*order.OrderData, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/customers/"+url.PathEscape(phone)+"/orders/last", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build last order request")
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "orders API unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, errors.Wrapf(errors.ErrNotFound, "no prior order for phone %s", phone)
	}
	if resp.StatusCode >= 300 {
		return nil, errors.Wrapf(errors.ErrUnavailable, "orders API returned status %d", resp.StatusCode)
	}

	var data order.OrderData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, errors.Wrap(err, "decode last order")
	}
	if len(data.Items) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "empty prior order for phone %s", phone)
	}

	data.Source = order.SourceRepeat
	return &data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
