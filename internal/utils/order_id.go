package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	orderIDPrefix   = "ORDER-"
	orderIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderIDLength   = 10
)

// GenerateOrderID returns ORDER- followed by 10 random uppercase alphanumerics.
func GenerateOrderID() (string, error) {
	id, err := gonanoid.Generate(orderIDAlphabet, orderIDLength)
	if err != nil {
		return "", err
	}
	return orderIDPrefix + id, nil
}
