package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ggoodman/shiprocket-mcp-go/storage"
)

const (
	DefaultAPIURL            = "https://apiv2.shiprocket.in"
	DefaultServiceabilityURL = "https://serviceability.shiprocket.in"

	maxResponseBytes = 4 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithAPIURL overrides the base URL of the order and auth API.
func WithAPIURL(u string) Option {
	return func(c *Client) { c.apiURL = strings.TrimRight(u, "/") }
}

// WithServiceabilityURL overrides the base URL of the rate API.
func WithServiceabilityURL(u string) Option {
	return func(c *Client) { c.serviceabilityURL = strings.TrimRight(u, "/") }
}

// WithCache caches successful GET responses for ttl.
func WithCache(s storage.Storage, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = s
		c.cacheTTL = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client talks to the Shiprocket API. It is safe for concurrent use.
type Client struct {
	http              *http.Client
	apiURL            string
	serviceabilityURL string
	cache             storage.Storage
	cacheTTL          time.Duration
	log               *slog.Logger
}

// New constructs a Client.
func New(opts ...Option) *Client {
	c := &Client{
		http:              &http.Client{Timeout: 15 * time.Second},
		apiURL:            DefaultAPIURL,
		serviceabilityURL: DefaultServiceabilityURL,
		log:               slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges seller credentials for an API token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", ErrMissingCredentials
	}

	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", err
	}

	var out loginResponse
	if err := c.do(ctx, http.MethodPost, c.apiURL+"/v1/auth/login", "", bytes.NewReader(body), &out); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("login: %w: empty token", ErrMalformedResponse)
	}
	return out.Token, nil
}

// TrackShipment returns tracking data for an order id, AWB number or channel
// order id.
func (c *Client) TrackShipment(ctx context.Context, token, trackID string) (*TrackingData, error) {
	var out trackResponse
	u := c.apiURL + "/v1/copilot/order/track/" + url.PathEscape(trackID)
	if err := c.get(ctx, token, u, &out); err != nil {
		return nil, fmt.Errorf("track shipment: %w", err)
	}
	if out.TrackingData == nil {
		return nil, fmt.Errorf("track shipment: %w: missing tracking_data", ErrMalformedResponse)
	}
	return out.TrackingData, nil
}

// ShowOrder returns order details.
func (c *Client) ShowOrder(ctx context.Context, token, orderID string) (*Order, error) {
	var out orderResponse
	u := c.apiURL + "/v1/copilot/order/show/" + url.PathEscape(orderID)
	if err := c.get(ctx, token, u, &out); err != nil {
		return nil, fmt.Errorf("show order: %w", err)
	}
	if out.Data == nil {
		return nil, fmt.Errorf("show order: %w: missing data", ErrMalformedResponse)
	}
	return out.Data, nil
}

// CourierServiceability lists couriers able to carry the described shipment.
func (c *Client) CourierServiceability(ctx context.Context, token string, q RateQuery) ([]CourierCompany, error) {
	cod := "0"
	if q.Payment == PaymentCOD {
		cod = "1"
	}
	params := url.Values{}
	params.Set("pickup_postcode", q.PickupPostcode)
	params.Set("delivery_postcode", q.DeliveryPostcode)
	params.Set("weight", strconv.FormatFloat(q.WeightKg, 'f', -1, 64))
	params.Set("cod", cod)

	var out serviceabilityResponse
	u := c.serviceabilityURL + "/courier/ratingserviceability?" + params.Encode()
	if err := c.get(ctx, token, u, &out); err != nil {
		return nil, fmt.Errorf("courier serviceability: %w", err)
	}
	if out.Data == nil {
		return nil, fmt.Errorf("courier serviceability: %w: missing data", ErrMalformedResponse)
	}
	return out.Data.AvailableCourierCompanies, nil
}

func (c *Client) get(ctx context.Context, token, u string, out any) error {
	if c.cache != nil {
		item, err := c.cache.Get(ctx, u, storage.WithCredential(token))
		if err != nil {
			c.log.WarnContext(ctx, "shipping.cache.get.fail", slog.String("err", err.Error()))
		} else if item != nil {
			if err := json.Unmarshal(item.Data, out); err == nil {
				c.log.DebugContext(ctx, "shipping.cache.hit", slog.String("url", u))
				return nil
			}
		}
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, u, token, nil, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if c.cache != nil {
		opts := []storage.Option{storage.WithCredential(token)}
		if c.cacheTTL > 0 {
			opts = append(opts, storage.WithTTL(c.cacheTTL))
		}
		if err := c.cache.Set(ctx, u, raw, opts...); err != nil {
			c.log.WarnContext(ctx, "shipping.cache.set.fail", slog.String("err", err.Error()))
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, u, token string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WarnContext(ctx, "shipping.request.fail",
			slog.String("method", method),
			slog.String("path", req.URL.Path),
			slog.String("err", err.Error()))
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.log.DebugContext(ctx, "shipping.request.done",
		slog.String("method", method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("dur", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &msg) == nil {
			apiErr.Message = msg.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
