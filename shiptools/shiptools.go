// Package shiptools defines the shipping tools served to agents:
// order_tracker and rate_calculator. Both forward the session credential to
// the Shiprocket API unchanged.
package shiptools

import (
	"context"
	"log/slog"

	"github.com/ggoodman/shiprocket-mcp-go/mcpservice"
	"github.com/ggoodman/shiprocket-mcp-go/shipping"
)

const (
	OrderTrackerName   = "order_tracker"
	RateCalculatorName = "rate_calculator"

	trackNotFoundMessage = "I couldn't find any data for the tracking ID you provided. Please double-check the ID and try again."
	ratesFailedMessage   = "Unable to fetch couriers due to some error"
)

// API is the subset of the shipping client the tools call.
type API interface {
	TrackShipment(ctx context.Context, token, trackID string) (*shipping.TrackingData, error)
	ShowOrder(ctx context.Context, token, orderID string) (*shipping.Order, error)
	CourierServiceability(ctx context.Context, token string, q shipping.RateQuery) ([]shipping.CourierCompany, error)
}

var _ API = (*shipping.Client)(nil)

// Option configures the tool set.
type Option func(*config)

type config struct {
	log *slog.Logger
}

// WithLogger sets the logger used to record upstream failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// Tools builds the descriptors for every shipping tool.
func Tools(api API, opts ...Option) ([]mcpservice.ToolDescriptor, error) {
	cfg := config{log: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	tracker, err := newOrderTracker(api, cfg.log)
	if err != nil {
		return nil, err
	}
	rates, err := newRateCalculator(api, cfg.log)
	if err != nil {
		return nil, err
	}
	return []mcpservice.ToolDescriptor{tracker, rates}, nil
}

// NewRegistry returns a registry holding every shipping tool.
func NewRegistry(api API, opts ...Option) (*mcpservice.ToolRegistry, error) {
	tools, err := Tools(api, opts...)
	if err != nil {
		return nil, err
	}
	return mcpservice.NewToolRegistry(tools...)
}
