package payment

import (
	"context"
	"encoding/json"
	"net/http"
)

const (
	GatewayXendit   = "xendit"
	GatewayMidtrans = "midtrans"
	GatewayDemo     = "demo"
)

// CodeResult is what a gateway returns for a freshly requested QR code.
type CodeResult struct {
	QRCodeURL       *string
	Gateway         string
	GatewayResponse json.RawMessage
}

func (c *CodeResult) data() GatewayData {
	return GatewayData{
		Gateway:         c.Gateway,
		QRCodeURL:       c.QRCodeURL,
		GatewayResponse: c.GatewayResponse,
	}
}

type Gateway interface {
	Name() string
	GenerateCode(ctx context.Context, orderID string, amount int) (*CodeResult, error)
	// CheckStatus reports whether the gateway considers the payment complete.
	CheckStatus(ctx context.Context, p *Payment) (bool, error)
}

// SignatureVerifier is implemented by gateways that authenticate callbacks.
type SignatureVerifier interface {
	VerifySignature(r *http.Request) error
}

type Gateways map[string]Gateway

type GatewayConfig struct {
	XenditSecretKey      string
	XenditCallbackToken  string
	MidtransServerKey    string
	MidtransIsProduction bool
	CallbackURL          string
}

// NewGateways registers the demo gateway plus every real gateway that has
// credentials configured.
func NewGateways(cfg GatewayConfig) Gateways {
	gws := Gateways{GatewayDemo: NewDemoGateway()}

	if cfg.XenditSecretKey != "" {
		gws[GatewayXendit] = NewXenditGateway(cfg.XenditSecretKey, cfg.XenditCallbackToken, cfg.CallbackURL)
	}
	if cfg.MidtransServerKey != "" {
		gws[GatewayMidtrans] = NewMidtransGateway(cfg.MidtransServerKey, cfg.MidtransIsProduction)
	}

	return gws
}
