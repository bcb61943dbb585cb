package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"pdfdocx-be/internal/logger"
	"pdfdocx-be/internal/payment"
	"pdfdocx-be/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxCallbackBody = 1 << 20

// Store persists raw callback deliveries.
type Store interface {
	SavePaymentWebhook(
		ctx context.Context,
		provider string,
		eventID string,
		eventType string,
		externalID string,
		payload json.RawMessage,
		signatureValid bool,
	) (int64, bool, error)
}

// Payload covers the fields of Xendit and Midtrans callbacks we index on.
type Payload struct {
	ID                string `json:"id"`
	Event             string `json:"event"`
	ExternalID        string `json:"external_id"`
	Status            string `json:"status"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	OrderID           string `json:"order_id"`
}

func (p *Payload) provider() string {
	switch {
	case p.ExternalID != "":
		return payment.GatewayXendit
	case p.TransactionStatus != "":
		return payment.GatewayMidtrans
	default:
		return "unknown"
	}
}

func (p *Payload) eventID() string {
	if p.ID != "" {
		return p.ID
	}
	if p.TransactionID != "" {
		return p.TransactionID
	}
	return uuid.NewString()
}

func (p *Payload) eventType() string {
	switch {
	case p.Event != "":
		return p.Event
	case p.TransactionStatus != "":
		return p.TransactionStatus
	default:
		return p.Status
	}
}

func (p *Payload) externalID() string {
	if p.ExternalID != "" {
		return p.ExternalID
	}
	return p.OrderID
}

// Handler acknowledges gateway callbacks. Deliveries are recorded and logged
// only; payment state is driven by status polling.
type Handler struct {
	Store     Store
	Verifiers map[string]payment.SignatureVerifier
}

func NewCallbackHandler(store Store, gateways payment.Gateways) *Handler {
	verifiers := make(map[string]payment.SignatureVerifier)
	for name, gw := range gateways {
		if v, ok := gw.(payment.SignatureVerifier); ok {
			verifiers[name] = v
		}
	}

	return &Handler{
		Store:     store,
		Verifiers: verifiers,
	}
}

func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromCtx(r.Context())
	defer utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		log.Warn("Failed to read payment callback body", zap.Error(err))
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("Payment callback is not JSON", zap.Error(err), zap.Int("bytes", len(body)))
		return
	}

	provider := payload.provider()
	signatureValid := false
	if v, ok := h.Verifiers[provider]; ok {
		if err := v.VerifySignature(r); err != nil {
			log.Warn("Payment callback signature mismatch", zap.String("provider", provider), zap.Error(err))
		} else {
			signatureValid = true
		}
	}

	log = log.With(
		zap.String("provider", provider),
		zap.String("external_id", payload.externalID()),
		zap.String("event_type", payload.eventType()),
		zap.Bool("signature_valid", signatureValid),
	)
	log.Info("Payment callback received")

	if h.Store == nil {
		return
	}

	id, dup, err := h.Store.SavePaymentWebhook(
		r.Context(),
		provider,
		payload.eventID(),
		payload.eventType(),
		payload.externalID(),
		json.RawMessage(body),
		signatureValid,
	)
	if err != nil {
		log.Error("Failed to record payment callback", zap.Error(err))
		return
	}
	if dup {
		log.Info("Duplicate payment callback ignored")
		return
	}
	log.Debug("Payment callback recorded", zap.Int64("webhook_id", id))
}
