package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

const demoQRRenderer = "https://api.qrserver.com/v1/create-qr-code/?size=300x300&data="

type demoGateway struct{}

// NewDemoGateway returns the local stand-in used when no real gateway is
// configured or reachable. Its codes can only be paid through Simulate.
func NewDemoGateway() Gateway {
	return demoGateway{}
}

func (demoGateway) Name() string {
	return GatewayDemo
}

// demoQRString builds a QRIS-shaped payload that embeds the order id.
func demoQRString(orderID string) string {
	return "00020101021226670016COM.MERCHANT.WWW01189360050300000898740214" + orderID +
		"0303UME51440014ID.CO.QRIS.WWW0215ID" + orderID +
		"0303UME5204581153033605802ID5909PDFCONVERTER6007JAKARTA61051234062070503***63046B8A"
}

func (demoGateway) GenerateCode(_ context.Context, orderID string, amount int) (*CodeResult, error) {
	qr := demoQRString(orderID)
	qrURL := demoQRRenderer + url.QueryEscape(qr)

	raw, err := json.Marshal(map[string]interface{}{
		"order_id":  orderID,
		"amount":    amount,
		"qr_string": qr,
	})
	if err != nil {
		return nil, fmt.Errorf("demo: %w", err)
	}

	return &CodeResult{
		QRCodeURL:       &qrURL,
		Gateway:         GatewayDemo,
		GatewayResponse: raw,
	}, nil
}

func (demoGateway) CheckStatus(context.Context, *Payment) (bool, error) {
	return false, nil
}
