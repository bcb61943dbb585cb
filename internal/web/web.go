package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"pdfdocx-be/internal/logger"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageData feeds the converter page.
type PageData struct {
	Price          string
	PaymentEnabled bool
	MaxUploadMB    int
	PollInterval   int
}

type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tmpl: tmpl}, nil
}

func (r *Renderer) Converter(w http.ResponseWriter, req *http.Request, data PageData) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "converter.html", data); err != nil {
		logger.FromCtx(req.Context()).Error("Failed to render converter page", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
