package converter

import (
	"context"
	"io"
)

// Converter turns an uploaded PDF into a DOCX kept in the temp store and
// returns the stored file name.
type Converter interface {
	Convert(ctx context.Context, src io.Reader, filename string) (string, error)
}
