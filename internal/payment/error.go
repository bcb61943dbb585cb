package payment

import "errors"

var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrDuplicateOrderID = errors.New("duplicate order id")
	ErrNotConfigured    = errors.New("payment gateway not configured")
)
