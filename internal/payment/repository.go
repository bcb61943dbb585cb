package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id int64) (*Payment, error)
	// FindActivePending returns the newest pending record of the session that
	// expires after now, or nil.
	FindActivePending(ctx context.Context, sessionID string, now time.Time) (*Payment, error)
	// FindLatestPaid returns the newest paid record of the session, or nil.
	FindLatestPaid(ctx context.Context, sessionID string) (*Payment, error)
	MarkPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id int64) (bool, error)
	SavePaymentWebhook(
		ctx context.Context,
		provider string,
		eventID string,
		eventType string,
		externalID string,
		payload json.RawMessage,
		signatureValid bool,
	) (webhookID int64, isDuplicate bool, err error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const paymentColumns = `
	id, order_id, session_id, amount, payment_method, status,
	qr_code_url, payment_data, paid_at, expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*Payment, error) {
	var (
		p         Payment
		status    string
		qrCodeURL sql.NullString
		paidAt    sql.NullTime
		expiresAt sql.NullTime
	)

	err := row.Scan(
		&p.ID, &p.OrderID, &p.SessionID, &p.Amount, &p.PaymentMethod, &status,
		&qrCodeURL, &p.PaymentData, &paidAt, &expiresAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = Status(status)
	if qrCodeURL.Valid {
		p.QRCodeURL = &qrCodeURL.String
	}
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	if expiresAt.Valid {
		p.ExpiresAt = &expiresAt.Time
	}
	return &p, nil
}

func (r *repository) Create(ctx context.Context, p *Payment) error {
	const q = `
	INSERT INTO payments (
		order_id,
		session_id,
		amount,
		payment_method,
		status,
		qr_code_url,
		payment_data,
		expires_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id, created_at, updated_at;
	`

	err := r.db.QueryRowContext(ctx, q,
		p.OrderID,
		p.SessionID,
		p.Amount,
		p.PaymentMethod,
		string(p.Status),
		p.QRCodeURL,
		p.PaymentData,
		p.ExpiresAt,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateOrderID
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+paymentColumns+` FROM payments WHERE id = $1`, id)

	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repository) findOne(ctx context.Context, query string, args ...any) (*Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repository) FindActivePending(ctx context.Context, sessionID string, now time.Time) (*Payment, error) {
	return r.findOne(ctx, `SELECT`+paymentColumns+`
		FROM payments
		WHERE session_id = $1 AND status = $2 AND expires_at > $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		sessionID, string(StatusPending), now,
	)
}

func (r *repository) FindLatestPaid(ctx context.Context, sessionID string) (*Payment, error) {
	return r.findOne(ctx, `SELECT`+paymentColumns+`
		FROM payments
		WHERE session_id = $1 AND status = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		sessionID, string(StatusPaid),
	)
}

// MarkPaid only moves pending rows, so paid_at is written exactly once.
func (r *repository) MarkPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, paid_at = $2, updated_at = now()
		WHERE id = $3 AND status = $4`,
		string(StatusPaid), paidAt, id, string(StatusPending),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *repository) MarkCompleted(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		string(StatusCompleted), id, string(StatusPaid),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *repository) SavePaymentWebhook(
	ctx context.Context,
	provider string,
	eventID string,
	eventType string,
	externalID string,
	payload json.RawMessage,
	signatureValid bool,
) (int64, bool, error) {

	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_id,
		event_type,
		external_id,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, event_id)
	DO NOTHING
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		q,
		provider,
		eventID,
		eventType,
		externalID,
		signatureValid,
		[]byte(payload),
	).Scan(&id)

	if err != nil {
		// Duplicate webhook → idempotent success
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}

	return id, false, nil
}
