package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pdfdocx-be/internal/logger"
	"pdfdocx-be/internal/metrics"
	"pdfdocx-be/internal/utils"

	"go.uber.org/zap"
)

const (
	DefaultPrice = 500
	DefaultTTL   = 15 * time.Minute

	maxOrderIDAttempts = 3
)

// Options is the process-wide payment configuration.
type Options struct {
	// Enabled toggles payment enforcement for conversions.
	Enabled bool
	// Gateway names the strategy used to issue new QR codes.
	Gateway string
	Price   int
	TTL     time.Duration
}

type Service interface {
	Get(ctx context.Context, id int64) (*Payment, error)
	GetOrCreateActive(ctx context.Context, sessionID string) (*Payment, error)
	// GetUsablePaid returns nil when the session must pay first.
	GetUsablePaid(ctx context.Context, sessionID string) (*Payment, error)
	CheckStatus(ctx context.Context, p *Payment) (*Payment, error)
	Simulate(ctx context.Context, p *Payment) (*Payment, error)
	MarkCompleted(ctx context.Context, p *Payment) error
}

type service struct {
	repo       Repository
	gateways   Gateways
	fallback   Gateway
	opts       Options
	now        func() time.Time
	newOrderID func() (string, error)
}

func NewService(repo Repository, gateways Gateways, opts Options) Service {
	if opts.Price <= 0 {
		opts.Price = DefaultPrice
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	fallback, ok := gateways[GatewayDemo]
	if !ok {
		fallback = NewDemoGateway()
	}

	return &service{
		repo:       repo,
		gateways:   gateways,
		fallback:   fallback,
		opts:       opts,
		now:        time.Now,
		newOrderID: utils.GenerateOrderID,
	}
}

func (s *service) Get(ctx context.Context, id int64) (*Payment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetOrCreateActive(ctx context.Context, sessionID string) (*Payment, error) {
	now := s.now()

	existing, err := s.repo.FindActivePending(ctx, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("find pending payment: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	return s.create(ctx, sessionID, now)
}

func (s *service) create(ctx context.Context, sessionID string, now time.Time) (*Payment, error) {
	expiresAt := now.Add(s.opts.TTL)

	for attempt := 1; ; attempt++ {
		orderID, err := s.newOrderID()
		if err != nil {
			return nil, fmt.Errorf("generate order id: %w", err)
		}

		code := s.generateCode(ctx, orderID, s.opts.Price)

		p := &Payment{
			OrderID:       orderID,
			SessionID:     sessionID,
			Amount:        s.opts.Price,
			PaymentMethod: MethodQRIS,
			Status:        StatusPending,
			QRCodeURL:     code.QRCodeURL,
			PaymentData:   code.data(),
			ExpiresAt:     &expiresAt,
		}

		err = s.repo.Create(ctx, p)
		if errors.Is(err, ErrDuplicateOrderID) && attempt < maxOrderIDAttempts {
			logger.FromCtx(ctx).Warn("Order id collision, retrying", zap.String("order_id", orderID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create payment: %w", err)
		}

		metrics.RecordPaymentCreated(code.Gateway)
		logger.FromCtx(ctx).Info("Payment created",
			zap.Int64("payment_id", p.ID),
			zap.String("order_id", p.OrderID),
			zap.String("gateway", code.Gateway),
		)
		return p, nil
	}
}

// generateCode asks the configured gateway for a QR code. Any failure falls
// back to the demo gateway so a payment can always be created.
func (s *service) generateCode(ctx context.Context, orderID string, amount int) *CodeResult {
	log := logger.FromCtx(ctx).With(zap.String("order_id", orderID))

	gw, ok := s.gateways[s.opts.Gateway]
	if ok && gw.Name() != GatewayDemo {
		res, err := gw.GenerateCode(ctx, orderID, amount)
		if err == nil {
			return res
		}
		log.Warn("QRIS generation failed, using demo gateway",
			zap.String("gateway", gw.Name()),
			zap.Error(err),
		)
		metrics.RecordGatewayFallback(gw.Name())
	} else if s.opts.Gateway != GatewayDemo && s.opts.Gateway != "" {
		log.Warn("Gateway not configured, using demo gateway", zap.String("gateway", s.opts.Gateway))
		metrics.RecordGatewayFallback(s.opts.Gateway)
	}

	res, err := s.fallback.GenerateCode(ctx, orderID, amount)
	if err != nil {
		// The demo gateway only fails on JSON encoding of plain values.
		log.Error("Demo QRIS generation failed", zap.Error(err))
		return &CodeResult{Gateway: GatewayDemo}
	}
	return res
}

func (s *service) GetUsablePaid(ctx context.Context, sessionID string) (*Payment, error) {
	if !s.opts.Enabled {
		return &Payment{SessionID: sessionID, Status: StatusPaid, Bypass: true}, nil
	}

	p, err := s.repo.FindLatestPaid(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find paid payment: %w", err)
	}
	return p, nil
}

func (s *service) CheckStatus(ctx context.Context, p *Payment) (*Payment, error) {
	if !p.IsActiveAt(s.now()) || p.IsDemo() {
		return p, nil
	}

	log := logger.FromCtx(ctx).With(
		zap.Int64("payment_id", p.ID),
		zap.String("order_id", p.OrderID),
		zap.String("gateway", p.PaymentData.Gateway),
	)

	gw, ok := s.gateways[p.PaymentData.Gateway]
	if !ok {
		log.Warn("No gateway available for status check")
		return p, nil
	}

	paid, err := gw.CheckStatus(ctx, p)
	if err != nil {
		log.Error("Payment status check failed", zap.Error(err))
		return p, nil
	}
	if !paid {
		return p, nil
	}

	return s.markPaid(ctx, p, "gateway")
}

func (s *service) Simulate(ctx context.Context, p *Payment) (*Payment, error) {
	if !p.IsDemo() || !p.IsActiveAt(s.now()) {
		return p, nil
	}
	return s.markPaid(ctx, p, "simulate")
}

func (s *service) markPaid(ctx context.Context, p *Payment, source string) (*Payment, error) {
	updated, err := s.repo.MarkPaid(ctx, p.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("mark payment paid: %w", err)
	}
	if updated {
		metrics.RecordTransition(string(StatusPaid), source)
		logger.FromCtx(ctx).Info("Payment paid",
			zap.Int64("payment_id", p.ID),
			zap.String("order_id", p.OrderID),
			zap.String("source", source),
		)
	}

	fresh, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("reload payment: %w", err)
	}
	return fresh, nil
}

func (s *service) MarkCompleted(ctx context.Context, p *Payment) error {
	if !s.opts.Enabled || !p.Exists() {
		return nil
	}

	updated, err := s.repo.MarkCompleted(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("mark payment completed: %w", err)
	}
	if !updated {
		logger.FromCtx(ctx).Warn("Payment was not in paid state when completing",
			zap.Int64("payment_id", p.ID),
			zap.String("order_id", p.OrderID),
		)
		return nil
	}

	p.Status = StatusCompleted
	metrics.RecordTransition(string(StatusCompleted), "conversion")
	return nil
}
