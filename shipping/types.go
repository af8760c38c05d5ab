package shipping

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Text decodes a JSON string, number or boolean into its string form. The
// upstream API is inconsistent about whether ids and timestamps are quoted.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		*t = Text(data)
	}
	return nil
}

// Number decodes a JSON number or a numeric string.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// TrackingData is the tracking_data object of the track endpoint.
type TrackingData struct {
	TrackStatus Number             `json:"track_status"`
	Activities  []ShipmentActivity `json:"shipment_track_activities"`
	TrackURL    Text               `json:"track_url"`
}

// ShipmentActivity is one scan event, newest first.
type ShipmentActivity struct {
	Date     Text `json:"date"`
	Activity Text `json:"activity"`
	Location Text `json:"location"`
}

type trackResponse struct {
	TrackingData *TrackingData `json:"tracking_data"`
}

// Order is the subset of the order detail payload the tools consume.
type Order struct {
	ID        Text `json:"id"`
	CreatedAt Text `json:"created_at"`
	Status    Text `json:"status"`
	AWBData   struct {
		AWB Text `json:"awb"`
	} `json:"awb_data"`
}

type orderResponse struct {
	Data *Order `json:"data"`
}

// PaymentMode selects cash-on-delivery or prepaid pricing.
type PaymentMode string

const (
	PaymentCOD     PaymentMode = "COD"
	PaymentPrepaid PaymentMode = "PREPAID"
)

// RateQuery describes a shipment to price.
type RateQuery struct {
	PickupPostcode   string
	DeliveryPostcode string
	WeightKg         float64
	Payment          PaymentMode
}

// CourierCompany is one serviceable courier option.
type CourierCompany struct {
	CourierName   Text   `json:"courier_name"`
	CutoffTime    Text   `json:"cutoff_time"`
	ETD           Text   `json:"etd"`
	FreightCharge Number `json:"freight_charge"`
	IsSurface     bool   `json:"is_surface"`
	RTOCharges    Number `json:"rto_charges"`
}

type serviceabilityResponse struct {
	Data *struct {
		AvailableCourierCompanies []CourierCompany `json:"available_courier_companies"`
	} `json:"data"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}
