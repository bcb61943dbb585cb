package handler

import (
	"errors"
	"net/http"
	"os"

	"pdfdocx-be/internal/converter"
	"pdfdocx-be/internal/logger"
	"pdfdocx-be/internal/payment"
	"pdfdocx-be/internal/utils"
	"pdfdocx-be/internal/web"

	"go.uber.org/zap"
)

const pollIntervalMillis = 3000

type ConverterHandler struct {
	Payments  payment.Service
	Converter converter.Converter
	Store     *converter.TempStore
	Renderer  *web.Renderer
	AppURL    string
	Price     int
	Enabled   bool
}

func (h *ConverterHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.Renderer.Converter(w, r, web.PageData{
		Price:          utils.FormatIDR(int64(h.Price)),
		PaymentEnabled: h.Enabled,
		MaxUploadMB:    maxUploadMB,
		PollInterval:   pollIntervalMillis,
	})
}

func (h *ConverterHandler) Convert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx)

	file, header, err := readUpload(w, r)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		writeValidationError(w, err)
		return
	}
	defer file.Close()

	sessionID, _ := utils.GetSessionIDFromContext(ctx)
	p, err := h.Payments.GetUsablePaid(ctx, sessionID)
	if err != nil {
		log.Error("Failed to look up payment", zap.Error(err))
		utils.WriteJSONError(w, "Gagal mengkonversi PDF: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if p == nil {
		utils.WriteJSON(w, http.StatusPaymentRequired, map[string]any{
			"success":          false,
			"message":          "Pembayaran diperlukan untuk melakukan konversi.",
			"requires_payment": true,
		})
		return
	}

	name, err := h.Converter.Convert(ctx, file, header.Filename)
	if err != nil {
		utils.WriteJSONError(w, "Gagal mengkonversi PDF: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.Payments.MarkCompleted(ctx, p); err != nil {
		log.Error("Failed to complete payment after conversion",
			zap.Int64("payment_id", p.ID),
			zap.String("order_id", p.OrderID),
			zap.Error(err),
		)
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "PDF berhasil dikonversi.",
		"download_url": h.AppURL + "/download/" + name,
		"filename":     utils.TrimExt(header.Filename) + ".docx",
	})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		verr = &ValidationError{Messages: []string{msgFile}}
	}

	utils.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"message": verr.Error(),
		"errors":  map[string][]string{uploadField: verr.Messages},
	})
}

// Download streams a converted file once and removes it afterwards.
func (h *ConverterHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	log := logger.FromCtx(r.Context()).With(zap.String("file", name))

	f, err := h.Store.Open(name)
	if errors.Is(err, converter.ErrFileNotFound) {
		utils.WriteJSONError(w, "File not found.", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error("Failed to open converted file", zap.Error(err))
		utils.WriteJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		log.Error("Failed to stat converted file", zap.Error(err))
		utils.WriteJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
	f.Close()

	if err := h.Store.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove converted file", zap.Error(err))
	}
}
