package handler

import (
	"net/http"

	"pdfdocx-be/internal/auth"
	"pdfdocx-be/internal/logger"
	"pdfdocx-be/internal/metrics"
	"pdfdocx-be/internal/middleware"
	"pdfdocx-be/internal/payment/webhook"
	"pdfdocx-be/internal/utils"
)

type RouterDeps struct {
	Converter    *ConverterHandler
	Payments     *PaymentHandler
	Callback     *webhook.Handler
	Sessions     *auth.SessionSigner
	Limiter      *middleware.RateLimiter
	SecureCookie bool
}

func NewRouter(d RouterDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/converter", http.StatusFound)
	})
	mux.HandleFunc("GET /converter", d.Converter.Index)
	mux.HandleFunc("POST /convert", d.Converter.Convert)
	mux.HandleFunc("GET /download/{filename}", d.Converter.Download)

	mux.HandleFunc("POST /payment/create", d.Payments.Create)
	mux.HandleFunc("GET /payment/{id}/status", d.Payments.Status)
	mux.HandleFunc("POST /payment/{id}/simulate", d.Payments.Simulate)
	mux.HandleFunc("POST /payment/callback", d.Callback.Callback)

	var h http.Handler = metrics.Middleware(mux)
	if d.Limiter != nil {
		h = d.Limiter.Middleware(h)
	}
	h = logger.LoggingMiddleware(h)
	h = middleware.SessionMiddleware(d.Sessions, d.SecureCookie)(h)
	h = logger.RequestIDMiddleware(h)
	return h
}
