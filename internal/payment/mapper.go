package payment

import (
	"time"

	"pdfdocx-be/internal/utils"
)

// View is the JSON shape of a payment returned to the browser.
type View struct {
	ID            int64       `json:"id"`
	OrderID       string      `json:"order_id"`
	SessionID     string      `json:"session_id"`
	Amount        int         `json:"amount"`
	PaymentMethod string      `json:"payment_method"`
	Status        Status      `json:"status"`
	QRCodeURL     *string     `json:"qr_code_url"`
	PaymentData   GatewayData `json:"payment_data"`
	PaidAt        *time.Time  `json:"paid_at"`
	ExpiresAt     *time.Time  `json:"expires_at"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	IsDemo        bool        `json:"is_demo"`
	Instructions  []string    `json:"instructions"`
}

var jakarta = loadJakarta()

func loadJakarta() *time.Location {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

// ToView renders p with its status evaluated at now.
func ToView(p *Payment, now time.Time) View {
	vars := InstructionVars{"amount": utils.FormatIDR(int64(p.Amount))}
	if p.ExpiresAt != nil {
		vars["expires_at"] = p.ExpiresAt.In(jakarta).Format("15:04 WIB")
	}

	return View{
		ID:            p.ID,
		OrderID:       p.OrderID,
		SessionID:     p.SessionID,
		Amount:        p.Amount,
		PaymentMethod: p.PaymentMethod,
		Status:        p.EffectiveStatus(now),
		QRCodeURL:     p.QRCodeURL,
		PaymentData:   p.PaymentData,
		PaidAt:        p.PaidAt,
		ExpiresAt:     p.ExpiresAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		IsDemo:        p.IsDemo(),
		Instructions:  InjectVariables(GetInstructions(p.PaymentMethod), vars),
	}
}
