package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, p *Payment) error {
	args := m.Called(ctx, p)
	if args.Error(0) == nil {
		p.ID = 42
	}
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id int64) (*Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) FindActivePending(ctx context.Context, sessionID string, now time.Time) (*Payment, error) {
	args := m.Called(ctx, sessionID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) FindLatestPaid(ctx context.Context, sessionID string) (*Payment, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) MarkPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, id, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) MarkCompleted(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) SavePaymentWebhook(ctx context.Context, provider, eventID, eventType, externalID string, payload json.RawMessage, signatureValid bool) (int64, bool, error) {
	args := m.Called(ctx, provider, eventID, eventType, externalID, payload, signatureValid)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

type MockGateway struct {
	mock.Mock
	name string
}

func (m *MockGateway) Name() string {
	return m.name
}

func (m *MockGateway) GenerateCode(ctx context.Context, orderID string, amount int) (*CodeResult, error) {
	args := m.Called(ctx, orderID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CodeResult), args.Error(1)
}

func (m *MockGateway) CheckStatus(ctx context.Context, p *Payment) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestService(repo Repository, gws Gateways, opts Options) *service {
	svc := NewService(repo, gws, opts).(*service)
	svc.now = func() time.Time { return fixedNow }
	svc.newOrderID = func() (string, error) { return "ORDER-TEST000001", nil }
	return svc
}

func pendingPayment(gateway string) *Payment {
	expires := fixedNow.Add(10 * time.Minute)
	return &Payment{
		ID:            7,
		OrderID:       "ORDER-EXISTING01",
		SessionID:     "sess-1",
		Amount:        500,
		PaymentMethod: MethodQRIS,
		Status:        StatusPending,
		PaymentData:   GatewayData{Gateway: gateway},
		ExpiresAt:     &expires,
	}
}

func TestService_GetOrCreateActive(t *testing.T) {
	ctx := context.Background()

	t.Run("ReusesActivePending", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{GatewayDemo: NewDemoGateway()}, Options{Enabled: true, Gateway: GatewayDemo})

		existing := pendingPayment(GatewayDemo)
		repo.On("FindActivePending", ctx, "sess-1", fixedNow).Return(existing, nil)

		p, err := svc.GetOrCreateActive(ctx, "sess-1")
		assert.NoError(t, err)
		assert.Same(t, existing, p)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("CreatesDemoPayment", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{GatewayDemo: NewDemoGateway()}, Options{Enabled: true, Gateway: GatewayDemo})

		repo.On("FindActivePending", ctx, "sess-1", fixedNow).Return(nil, nil)
		repo.On("Create", ctx, mock.MatchedBy(func(p *Payment) bool {
			return p.OrderID == "ORDER-TEST000001" &&
				p.SessionID == "sess-1" &&
				p.Amount == DefaultPrice &&
				p.Status == StatusPending &&
				p.PaymentMethod == MethodQRIS &&
				p.ExpiresAt.Equal(fixedNow.Add(DefaultTTL))
		})).Return(nil)

		p, err := svc.GetOrCreateActive(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, int64(42), p.ID)
		assert.True(t, p.IsDemo())
		require.NotNil(t, p.QRCodeURL)
		assert.Contains(t, *p.QRCodeURL, "api.qrserver.com")
		repo.AssertExpectations(t)
	})

	t.Run("UsesConfiguredGatewayAndPrice", func(t *testing.T) {
		repo := new(MockRepository)
		gw := &MockGateway{name: GatewayXendit}
		svc := newTestService(repo, Gateways{GatewayDemo: NewDemoGateway(), GatewayXendit: gw},
			Options{Enabled: true, Gateway: GatewayXendit, Price: 2500})

		qr := "00020101xendit"
		gw.On("GenerateCode", ctx, "ORDER-TEST000001", 2500).
			Return(&CodeResult{Gateway: GatewayXendit, QRCodeURL: &qr, GatewayResponse: json.RawMessage(`{"id":"qr_1"}`)}, nil)
		repo.On("FindActivePending", ctx, "sess-1", fixedNow).Return(nil, nil)
		repo.On("Create", ctx, mock.Anything).Return(nil)

		p, err := svc.GetOrCreateActive(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, 2500, p.Amount)
		assert.Equal(t, GatewayXendit, p.PaymentData.Gateway)
		assert.Equal(t, &qr, p.QRCodeURL)
		assert.False(t, p.IsDemo())
	})

	t.Run("FallsBackToDemoOnGatewayError", func(t *testing.T) {
		repo := new(MockRepository)
		gw := &MockGateway{name: GatewayMidtrans}
		svc := newTestService(repo, Gateways{GatewayDemo: NewDemoGateway(), GatewayMidtrans: gw},
			Options{Enabled: true, Gateway: GatewayMidtrans})

		gw.On("GenerateCode", ctx, mock.Anything, DefaultPrice).Return(nil, errors.New("timeout"))
		repo.On("FindActivePending", ctx, "sess-1", fixedNow).Return(nil, nil)
		repo.On("Create", ctx, mock.Anything).Return(nil)

		p, err := svc.GetOrCreateActive(ctx, "sess-1")
		require.NoError(t, err)
		assert.True(t, p.IsDemo())
		assert.NotNil(t, p.QRCodeURL)
	})

	t.Run("FallsBackToDemoWhenGatewayMissing", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{GatewayDemo: NewDemoGateway()}, Options{Enabled: true, Gateway: GatewayXendit})

		repo.On("FindActivePending", ctx, "sess-1", fixedNow).Return(nil, nil)
		repo.On("Create", ctx, mock.Anything).Return(nil)

		p, err := svc.GetOrCreateActive(ctx, "sess-1")
		require.NoError(t, err)
		assert.True(t, p.IsDemo())
	})

	t.Run("RetriesOnOrderIDCollision", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{GatewayDemo: NewDemoGateway()}, Options{Enabled: true})
		ids := []string{"ORDER-AAAAAAAAAA", "ORDER-BBBBBBBBBB"}
		svc.newOrderID = func() (string, error) {
			id := ids[0]
			ids = ids[1:]
			return id, nil
		}

		repo.On("FindActivePending", ctx, "sess-1", fixedNow).Return(nil, nil)
		repo.On("Create", ctx, mock.MatchedBy(func(p *Payment) bool { return p.OrderID == "ORDER-AAAAAAAAAA" })).
			Return(ErrDuplicateOrderID).Once()
		repo.On("Create", ctx, mock.MatchedBy(func(p *Payment) bool { return p.OrderID == "ORDER-BBBBBBBBBB" })).
			Return(nil).Once()

		p, err := svc.GetOrCreateActive(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, "ORDER-BBBBBBBBBB", p.OrderID)
		repo.AssertExpectations(t)
	})

	t.Run("LookupError", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{}, Options{Enabled: true})

		repo.On("FindActivePending", ctx, "sess-1", fixedNow).Return(nil, errors.New("db down"))

		p, err := svc.GetOrCreateActive(ctx, "sess-1")
		assert.Error(t, err)
		assert.Nil(t, p)
	})
}

func TestService_GetUsablePaid(t *testing.T) {
	ctx := context.Background()

	t.Run("BypassWhenDisabled", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{}, Options{Enabled: false})

		p, err := svc.GetUsablePaid(ctx, "sess-1")
		require.NoError(t, err)
		assert.True(t, p.Bypass)
		assert.True(t, p.IsPaid())
		assert.False(t, p.Exists())
		repo.AssertNotCalled(t, "FindLatestPaid", mock.Anything, mock.Anything)
	})

	t.Run("ReturnsLatestPaid", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{}, Options{Enabled: true})

		paid := pendingPayment(GatewayDemo)
		paid.Status = StatusPaid
		repo.On("FindLatestPaid", ctx, "sess-1").Return(paid, nil)

		p, err := svc.GetUsablePaid(ctx, "sess-1")
		assert.NoError(t, err)
		assert.Same(t, paid, p)
	})

	t.Run("NilWhenUnpaid", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{}, Options{Enabled: true})

		repo.On("FindLatestPaid", ctx, "sess-1").Return(nil, nil)

		p, err := svc.GetUsablePaid(ctx, "sess-1")
		assert.NoError(t, err)
		assert.Nil(t, p)
	})
}

func TestService_CheckStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("DemoIsNoop", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{GatewayDemo: NewDemoGateway()}, Options{Enabled: true})

		p := pendingPayment(GatewayDemo)
		got, err := svc.CheckStatus(ctx, p)
		assert.NoError(t, err)
		assert.Same(t, p, got)
		repo.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("GatewayPaidMarksPaid", func(t *testing.T) {
		repo := new(MockRepository)
		gw := &MockGateway{name: GatewayXendit}
		svc := newTestService(repo, Gateways{GatewayXendit: gw}, Options{Enabled: true})

		p := pendingPayment(GatewayXendit)
		fresh := *p
		fresh.Status = StatusPaid
		fresh.PaidAt = &fixedNow

		gw.On("CheckStatus", ctx, p).Return(true, nil)
		repo.On("MarkPaid", ctx, int64(7), fixedNow).Return(true, nil)
		repo.On("GetByID", ctx, int64(7)).Return(&fresh, nil)

		got, err := svc.CheckStatus(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, got.Status)
		assert.Equal(t, fixedNow, *got.PaidAt)
	})

	t.Run("GatewayPendingUnchanged", func(t *testing.T) {
		repo := new(MockRepository)
		gw := &MockGateway{name: GatewayMidtrans}
		svc := newTestService(repo, Gateways{GatewayMidtrans: gw}, Options{Enabled: true})

		p := pendingPayment(GatewayMidtrans)
		gw.On("CheckStatus", ctx, p).Return(false, nil)

		got, err := svc.CheckStatus(ctx, p)
		assert.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
	})

	t.Run("GatewayErrorSwallowed", func(t *testing.T) {
		repo := new(MockRepository)
		gw := &MockGateway{name: GatewayMidtrans}
		svc := newTestService(repo, Gateways{GatewayMidtrans: gw}, Options{Enabled: true})

		p := pendingPayment(GatewayMidtrans)
		gw.On("CheckStatus", ctx, p).Return(false, errors.New("502"))

		got, err := svc.CheckStatus(ctx, p)
		assert.NoError(t, err)
		assert.Same(t, p, got)
	})

	t.Run("ExpiredIsNoop", func(t *testing.T) {
		repo := new(MockRepository)
		gw := &MockGateway{name: GatewayXendit}
		svc := newTestService(repo, Gateways{GatewayXendit: gw}, Options{Enabled: true})

		p := pendingPayment(GatewayXendit)
		past := fixedNow.Add(-time.Minute)
		p.ExpiresAt = &past

		got, err := svc.CheckStatus(ctx, p)
		assert.NoError(t, err)
		assert.Equal(t, StatusExpired, got.EffectiveStatus(fixedNow))
		gw.AssertNotCalled(t, "CheckStatus", mock.Anything, mock.Anything)
	})

	t.Run("CompletedNeverRegresses", func(t *testing.T) {
		repo := new(MockRepository)
		gw := &MockGateway{name: GatewayXendit}
		svc := newTestService(repo, Gateways{GatewayXendit: gw}, Options{Enabled: true})

		p := pendingPayment(GatewayXendit)
		p.Status = StatusCompleted

		got, err := svc.CheckStatus(ctx, p)
		assert.NoError(t, err)
		assert.Equal(t, StatusCompleted, got.Status)
		gw.AssertNotCalled(t, "CheckStatus", mock.Anything, mock.Anything)
	})
}

func TestService_Simulate(t *testing.T) {
	ctx := context.Background()

	t.Run("DemoPendingBecomesPaid", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{GatewayDemo: NewDemoGateway()}, Options{Enabled: true})

		p := pendingPayment(GatewayDemo)
		fresh := *p
		fresh.Status = StatusPaid
		fresh.PaidAt = &fixedNow

		repo.On("MarkPaid", ctx, int64(7), fixedNow).Return(true, nil)
		repo.On("GetByID", ctx, int64(7)).Return(&fresh, nil)

		got, err := svc.Simulate(ctx, p)
		require.NoError(t, err)
		assert.True(t, got.IsPaid())
		assert.NotNil(t, got.PaidAt)
	})

	t.Run("NonDemoUnchanged", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{}, Options{Enabled: true})

		p := pendingPayment(GatewayXendit)
		got, err := svc.Simulate(ctx, p)
		assert.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
		repo.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("AlreadyPaidKeepsPaidAt", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{}, Options{Enabled: true})

		p := pendingPayment(GatewayDemo)
		earlier := fixedNow.Add(-time.Minute)
		p.Status = StatusPaid
		p.PaidAt = &earlier

		got, err := svc.Simulate(ctx, p)
		assert.NoError(t, err)
		assert.Equal(t, earlier, *got.PaidAt)
	})

	t.Run("RepositoryError", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{}, Options{Enabled: true})

		p := pendingPayment(GatewayDemo)
		repo.On("MarkPaid", ctx, int64(7), fixedNow).Return(false, errors.New("db error"))

		got, err := svc.Simulate(ctx, p)
		assert.Error(t, err)
		assert.Nil(t, got)
	})
}

func TestService_MarkCompleted(t *testing.T) {
	ctx := context.Background()

	t.Run("PaidBecomesCompleted", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{}, Options{Enabled: true})

		p := pendingPayment(GatewayDemo)
		p.Status = StatusPaid
		repo.On("MarkCompleted", ctx, int64(7)).Return(true, nil)

		err := svc.MarkCompleted(ctx, p)
		assert.NoError(t, err)
		assert.Equal(t, StatusCompleted, p.Status)
	})

	t.Run("BypassIsNoop", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{}, Options{Enabled: false})

		bypass, err := svc.GetUsablePaid(ctx, "sess-1")
		require.NoError(t, err)

		assert.NoError(t, svc.MarkCompleted(ctx, bypass))
		repo.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything)
	})

	t.Run("NotUpdatedIsTolerated", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{}, Options{Enabled: true})

		p := pendingPayment(GatewayDemo)
		p.Status = StatusPaid
		repo.On("MarkCompleted", ctx, int64(7)).Return(false, nil)

		assert.NoError(t, svc.MarkCompleted(ctx, p))
		assert.Equal(t, StatusPaid, p.Status)
	})

	t.Run("RepositoryError", func(t *testing.T) {
		repo := new(MockRepository)
		svc := newTestService(repo, Gateways{}, Options{Enabled: true})

		p := pendingPayment(GatewayDemo)
		p.Status = StatusPaid
		repo.On("MarkCompleted", ctx, int64(7)).Return(false, errors.New("db error"))

		assert.Error(t, svc.MarkCompleted(ctx, p))
	})
}
