package payment

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCompleted Status = "completed"
	// StatusExpired is derived at read time and never stored.
	StatusExpired Status = "expired"
)

const MethodQRIS = "qris"

// GatewayData is the opaque gateway metadata kept in payments.payment_data.
type GatewayData struct {
	Gateway         string          `json:"gateway"`
	QRCodeURL       *string         `json:"qr_code_url"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`
}

func (d GatewayData) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *GatewayData) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = GatewayData{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return errors.New("payment_data: unsupported column type")
	}
}

type Payment struct {
	ID            int64
	OrderID       string
	SessionID     string
	Amount        int
	PaymentMethod string
	Status        Status
	QRCodeURL     *string
	PaymentData   GatewayData
	PaidAt        *time.Time
	ExpiresAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Bypass marks the unsaved record handed out when enforcement is off.
	Bypass bool
}

func (p *Payment) Exists() bool {
	return p != nil && p.ID != 0 && !p.Bypass
}

func (p *Payment) IsPaid() bool {
	return p.Status == StatusPaid
}

func (p *Payment) IsDemo() bool {
	return p.PaymentData.Gateway == GatewayDemo
}

// IsExpiredAt reports whether a pending record has passed its expiry.
func (p *Payment) IsExpiredAt(now time.Time) bool {
	return p.Status == StatusPending && p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

// IsActiveAt reports whether the record is pending and not yet expired.
func (p *Payment) IsActiveAt(now time.Time) bool {
	return p.Status == StatusPending && !p.IsExpiredAt(now)
}

func (p *Payment) EffectiveStatus(now time.Time) Status {
	if p.IsExpiredAt(now) {
		return StatusExpired
	}
	return p.Status
}
