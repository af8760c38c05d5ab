package shiptools

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ggoodman/shiprocket-mcp-go/mcpservice"
	"github.com/ggoodman/shiprocket-mcp-go/sessions"
	"github.com/ggoodman/shiprocket-mcp-go/shipping"
)

type orderTrackerArgs struct {
	TrackID string `json:"track_id" jsonschema:"description=Alphanumeric tracking ID: an order id or AWB number or channel order id"`
}

type orderTracking struct {
	OrderID     string   `json:"orderId"`
	CreatedOn   string   `json:"createdOn"`
	OrderStatus string   `json:"orderStatus"`
	AWBData     *awbData `json:"awbData"`
}

type awbData struct {
	Number           string `json:"number"`
	LastActivity     string `json:"lastActivity"`
	LastScanLocation string `json:"lastScanLocation"`
	LastScanTime     string `json:"lastScanTime"`
	TrackingURL      string `json:"trackingUrl"`
}

const orderTrackerDescription = `Look up tracking information for an order.

Returns a JSON object with orderId, createdOn, orderStatus and awbData.
awbData is null until a shipment is assigned; otherwise it holds the AWB
number, the last activity with its scan location and time, and the tracking
page URL.`

func newOrderTracker(api API, log *slog.Logger) (mcpservice.ToolDescriptor, error) {
	return mcpservice.NewTool(OrderTrackerName,
		func(ctx context.Context, cred sessions.CredentialContext, args orderTrackerArgs) (mcpservice.Result, error) {
			token := cred.Credential.Reveal()

			var (
				track *shipping.TrackingData
				order *shipping.Order
			)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				track, err = api.TrackShipment(gctx, token, args.TrackID)
				return err
			})
			g.Go(func() error {
				var err error
				order, err = api.ShowOrder(gctx, token, args.TrackID)
				return err
			})
			if err := g.Wait(); err != nil {
				log.WarnContext(ctx, "tool.order_tracker.upstream.fail", slog.String("err", err.Error()))
				return mcpservice.Result{}, mcpservice.UpstreamError(trackNotFoundMessage)
			}

			return mcpservice.JSONResult(buildOrderTracking(track, order))
		},
		mcpservice.WithToolDescription(orderTrackerDescription),
	)
}

func buildOrderTracking(track *shipping.TrackingData, order *shipping.Order) orderTracking {
	out := orderTracking{
		OrderID:     string(order.ID),
		CreatedOn:   string(order.CreatedAt),
		OrderStatus: string(order.Status),
	}
	if track.TrackStatus == 0 || len(track.Activities) == 0 {
		return out
	}
	last := track.Activities[0]
	out.AWBData = &awbData{
		Number:           string(order.AWBData.AWB),
		LastActivity:     string(last.Activity),
		LastScanLocation: string(last.Location),
		LastScanTime:     string(last.Date),
		TrackingURL:      string(track.TrackURL),
	}
	return out
}
