package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"pdfdocx-be/internal/logger"
	"pdfdocx-be/internal/payment"
	"pdfdocx-be/internal/utils"

	"go.uber.org/zap"
)

type PaymentHandler struct {
	Payments payment.Service
	Now      func() time.Time
}

func (h *PaymentHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *PaymentHandler) writePayment(w http.ResponseWriter, p *payment.Payment, message string) {
	body := map[string]any{"payment": payment.ToView(p, h.now())}
	if message != "" {
		body["message"] = message
	}
	utils.WriteJSON(w, http.StatusOK, body)
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := utils.GetSessionIDFromContext(r.Context())

	p, err := h.Payments.GetOrCreateActive(r.Context(), sessionID)
	if err != nil {
		logger.FromCtx(r.Context()).Error("Failed to create payment", zap.Error(err))
		utils.WriteJSONError(w, "Gagal membuat pembayaran.", http.StatusInternalServerError)
		return
	}

	h.writePayment(w, p, "")
}

func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}

	p, err := h.Payments.CheckStatus(r.Context(), p)
	if err != nil {
		logger.FromCtx(r.Context()).Error("Failed to check payment status", zap.Error(err))
		utils.WriteJSONError(w, "Gagal memeriksa status pembayaran.", http.StatusInternalServerError)
		return
	}

	h.writePayment(w, p, "")
}

func (h *PaymentHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}

	p, err := h.Payments.Simulate(r.Context(), p)
	if err != nil {
		logger.FromCtx(r.Context()).Error("Failed to simulate payment", zap.Error(err))
		utils.WriteJSONError(w, "Gagal mensimulasikan pembayaran.", http.StatusInternalServerError)
		return
	}

	h.writePayment(w, p, "Pembayaran berhasil disimulasikan")
}

// load resolves the {id} path value to a payment owned by the caller's session.
func (h *PaymentHandler) load(w http.ResponseWriter, r *http.Request) (*payment.Payment, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteJSONError(w, "Payment not found.", http.StatusNotFound)
		return nil, false
	}

	p, err := h.Payments.Get(r.Context(), id)
	if errors.Is(err, payment.ErrPaymentNotFound) {
		utils.WriteJSONError(w, "Payment not found.", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		logger.FromCtx(r.Context()).Error("Failed to load payment", zap.Int64("payment_id", id), zap.Error(err))
		utils.WriteJSONError(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}

	sessionID, _ := utils.GetSessionIDFromContext(r.Context())
	if p.SessionID != sessionID {
		utils.WriteJSONError(w, "Payment not found.", http.StatusNotFound)
		return nil, false
	}
	return p, true
}
