package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pdfdocx-be/internal/auth"
	"pdfdocx-be/internal/config"
	"pdfdocx-be/internal/converter"
	"pdfdocx-be/internal/db"
	"pdfdocx-be/internal/handler"
	"pdfdocx-be/internal/logger"
	"pdfdocx-be/internal/middleware"
	"pdfdocx-be/internal/payment"
	"pdfdocx-be/internal/payment/webhook"
	"pdfdocx-be/internal/web"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	initDBFunc      = db.InitDB
	startServerFunc = startServer
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server exited", zap.Error(err))
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	router, err := newServer(cfg, database)
	if err != nil {
		return err
	}

	logger.L().Info("Server starting",
		zap.String("port", cfg.AppPort),
		zap.String("env", cfg.AppEnv),
		zap.Bool("payment_enabled", cfg.PaymentEnabled),
		zap.String("payment_gateway", cfg.PaymentGateway),
	)
	return startServerFunc(":"+cfg.AppPort, router)
}

func newServer(cfg *config.Config, database *sql.DB) (http.Handler, error) {
	store, err := converter.NewTempStore(cfg.TempDir)
	if err != nil {
		return nil, err
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}

	paymentRepo := payment.NewRepository(database)
	gateways := payment.NewGateways(payment.GatewayConfig{
		XenditSecretKey:      cfg.XenditSecretKey,
		XenditCallbackToken:  cfg.XenditCallbackToken,
		MidtransServerKey:    cfg.MidtransServerKey,
		MidtransIsProduction: cfg.MidtransIsProduction,
		CallbackURL:          cfg.AppURL + "/payment/callback",
	})
	paymentSvc := payment.NewService(paymentRepo, gateways, payment.Options{
		Enabled: cfg.PaymentEnabled,
		Gateway: cfg.PaymentGateway,
		Price:   cfg.PaymentPrice,
		TTL:     payment.DefaultTTL,
	})

	limiter := middleware.NewRateLimiter()
	go limiter.Cleanup(context.Background())

	return handler.NewRouter(handler.RouterDeps{
		Converter: &handler.ConverterHandler{
			Payments:  paymentSvc,
			Converter: converter.NewCloudConvert(cfg.CloudConvertAPIKey, cfg.CloudConvertSandbox, store),
			Store:     store,
			Renderer:  renderer,
			AppURL:    cfg.AppURL,
			Price:     cfg.PaymentPrice,
			Enabled:   cfg.PaymentEnabled,
		},
		Payments:     &handler.PaymentHandler{Payments: paymentSvc},
		Callback:     webhook.NewCallbackHandler(paymentRepo, gateways),
		Sessions:     auth.NewSessionSigner(cfg.SessionSecret, auth.DefaultSessionTTL),
		Limiter:      limiter,
		SecureCookie: cfg.AppEnv == "production",
	}), nil
}

// startServer serves until SIGINT/SIGTERM, then drains in-flight requests.
func startServer(addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.L().Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
