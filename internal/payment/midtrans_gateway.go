package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"pdfdocx-be/internal/logger"

	"go.uber.org/zap"
)

const (
	midtransSandboxURL    = "https://api.sandbox.midtrans.com"
	midtransProductionURL = "https://api.midtrans.com"
)

var midtransPaidStatuses = map[string]bool{
	"capture":    true,
	"settlement": true,
}

type midtransGateway struct {
	serverKey  string
	baseURL    string
	httpClient *http.Client
}

type midtransAction struct {
	Name   string `json:"name"`
	Method string `json:"method"`
	URL    string `json:"url"`
}

type midtransResponse struct {
	StatusCode        string           `json:"status_code"`
	StatusMessage     string           `json:"status_message"`
	TransactionID     string           `json:"transaction_id"`
	TransactionStatus string           `json:"transaction_status"`
	Actions           []midtransAction `json:"actions"`
}

// failed reports a Midtrans-level error that came back with HTTP 200.
func (m *midtransResponse) failed() bool {
	return strings.HasPrefix(m.StatusCode, "4") || strings.HasPrefix(m.StatusCode, "5")
}

func NewMidtransGateway(serverKey string, isProduction bool) Gateway {
	base := midtransSandboxURL
	if isProduction {
		base = midtransProductionURL
	}

	return &midtransGateway{
		serverKey:  serverKey,
		baseURL:    base,
		httpClient: newGatewayClient(),
	}
}

func (m *midtransGateway) Name() string {
	return GatewayMidtrans
}

func (m *midtransGateway) GenerateCode(ctx context.Context, orderID string, amount int) (*CodeResult, error) {
	if m.serverKey == "" {
		return nil, ErrNotConfigured
	}

	log := logger.FromCtx(ctx).With(
		zap.String("gateway", GatewayMidtrans),
		zap.String("order_id", orderID),
		zap.Int("amount", amount),
	)

	body := map[string]interface{}{
		"payment_type": "qris",
		"transaction_details": map[string]interface{}{
			"order_id":     orderID,
			"gross_amount": amount,
		},
	}

	raw, err := doBasicAuthJSON(ctx, m.httpClient, log, http.MethodPost, m.baseURL+"/v2/charge", m.serverKey, body)
	if err != nil {
		return nil, fmt.Errorf("midtrans: %w", err)
	}

	var res midtransResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Error("Failed decoding Midtrans response", zap.Error(err))
		return nil, err
	}
	if res.failed() {
		log.Error("Midtrans rejected charge",
			zap.String("status_code", res.StatusCode),
			zap.String("status_message", res.StatusMessage),
		)
		return nil, fmt.Errorf("midtrans: %s %s", res.StatusCode, res.StatusMessage)
	}

	result := &CodeResult{
		Gateway:         GatewayMidtrans,
		GatewayResponse: json.RawMessage(raw),
	}
	if len(res.Actions) > 0 && res.Actions[0].URL != "" {
		result.QRCodeURL = &res.Actions[0].URL
	}

	log.Info("Midtrans QRIS charge created", zap.String("transaction_id", res.TransactionID))
	return result, nil
}

func (m *midtransGateway) CheckStatus(ctx context.Context, p *Payment) (bool, error) {
	if m.serverKey == "" {
		return false, ErrNotConfigured
	}

	log := logger.FromCtx(ctx).With(
		zap.String("gateway", GatewayMidtrans),
		zap.Int64("payment_id", p.ID),
		zap.String("order_id", p.OrderID),
	)

	endpoint := fmt.Sprintf("%s/v2/%s/status", m.baseURL, url.PathEscape(p.OrderID))
	raw, err := doBasicAuthJSON(ctx, m.httpClient, log, http.MethodGet, endpoint, m.serverKey, nil)
	if err != nil {
		return false, fmt.Errorf("midtrans: %w", err)
	}

	var res midtransResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Error("Failed decoding Midtrans status", zap.Error(err))
		return false, err
	}

	return midtransPaidStatuses[res.TransactionStatus], nil
}
