package converter

import "errors"

var (
	ErrConversionFailed = errors.New("failed to convert PDF to DOCX")
	ErrNotConfigured    = errors.New("CloudConvert API key is not configured")
	ErrFileNotFound     = errors.New("file not found")
)
