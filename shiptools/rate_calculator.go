package shiptools

import (
	"context"
	"log/slog"

	"github.com/ggoodman/shiprocket-mcp-go/mcpservice"
	"github.com/ggoodman/shiprocket-mcp-go/sessions"
	"github.com/ggoodman/shiprocket-mcp-go/shipping"
)

type rateCalculatorArgs struct {
	PickupPostcode   string  `json:"pickup_postcode" jsonschema:"description=Pincode of the pickup location"`
	DeliveryPostcode string  `json:"delivery_postcode" jsonschema:"description=Pincode of the delivery location"`
	WeightKg         float64 `json:"weight_in_kg" jsonschema:"description=Weight of the package in kilograms"`
	CODOrPrepaid     string  `json:"cod_or_prepaid" jsonschema:"description=Payment mode of the order,enum=COD,enum=PREPAID"`
}

type courierQuote struct {
	CourierName   string  `json:"courier_name"`
	CutoffTime    string  `json:"cutoff_time"`
	ETD           string  `json:"etd"`
	FreightCharge float64 `json:"freight_charge"`
	TransportMode string  `json:"transport_mode"`
	RTOCharges    float64 `json:"rto_charges"`
}

const rateCalculatorDescription = `List serviceable couriers for a shipment with their prices and estimated delivery dates.

Returns a JSON array; each entry has courier_name, cutoff_time, etd,
freight_charge (INR), transport_mode (SURFACE or AIR) and rto_charges (INR,
charged if the order is returned to origin).`

func newRateCalculator(api API, log *slog.Logger) (mcpservice.ToolDescriptor, error) {
	return mcpservice.NewTool(RateCalculatorName,
		func(ctx context.Context, cred sessions.CredentialContext, args rateCalculatorArgs) (mcpservice.Result, error) {
			couriers, err := api.CourierServiceability(ctx, cred.Credential.Reveal(), shipping.RateQuery{
				PickupPostcode:   args.PickupPostcode,
				DeliveryPostcode: args.DeliveryPostcode,
				WeightKg:         args.WeightKg,
				Payment:          shipping.PaymentMode(args.CODOrPrepaid),
			})
			if err != nil {
				log.WarnContext(ctx, "tool.rate_calculator.upstream.fail", slog.String("err", err.Error()))
				return mcpservice.Result{}, mcpservice.UpstreamError(ratesFailedMessage)
			}

			return mcpservice.JSONResult(buildQuotes(couriers))
		},
		mcpservice.WithToolDescription(rateCalculatorDescription),
	)
}

func buildQuotes(couriers []shipping.CourierCompany) []courierQuote {
	out := make([]courierQuote, 0, len(couriers))
	for _, c := range couriers {
		mode := "AIR"
		if c.IsSurface {
			mode = "SURFACE"
		}
		out = append(out, courierQuote{
			CourierName:   string(c.CourierName),
			CutoffTime:    string(c.CutoffTime),
			ETD:           string(c.ETD),
			FreightCharge: float64(c.FreightCharge),
			TransportMode: mode,
			RTOCharges:    float64(c.RTOCharges),
		})
	}
	return out
}
