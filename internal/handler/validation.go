package handler

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	uploadField    = "pdf"
	maxUploadBytes = 102400 * 1024
	maxUploadMB    = maxUploadBytes >> 20
	// multipart framing and other form fields on top of the file itself
	uploadOverhead = 512 * 1024
	sniffLen       = 512
	// leading bytes kept so an oversized upload can still be sniffed
	prefixLen = 64 * 1024
	pdfMIME   = "application/pdf"
)

const (
	msgRequired = "Please select a PDF file to upload."
	msgFile     = "The uploaded file is invalid."
	msgMime     = "Only PDF files are allowed."
	msgMax      = "The PDF file must not exceed 100MB."
)

// pdfUpload is the validated view of the "pdf" form field.
type pdfUpload struct {
	Provided bool   `validate:"required"`
	IsFile   bool   `validate:"required"`
	MIME     string `validate:"pdfmime"`
	Size     int64  `validate:"max=104857600"`
}

var fieldMessages = map[string]string{
	"Provided": msgRequired,
	"IsFile":   msgFile,
	"MIME":     msgMime,
	"Size":     msgMax,
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("pdfmime", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == pdfMIME
	})
	return v
}

// ValidationError carries one message per failing rule.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "validation failed"
	}
	return e.Messages[0]
}

func (u *pdfUpload) validate() error {
	if !u.Provided {
		return &ValidationError{Messages: []string{msgRequired}}
	}

	err := validate.Struct(u)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		if msg, ok := fieldMessages[fe.Field()]; ok {
			verr.Messages = append(verr.Messages, msg)
		}
	}
	return verr
}

// readUpload parses the multipart body and returns the uploaded PDF. The
// caller must close the file and remove r.MultipartForm.
func readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	prefix := &prefixReader{r: http.MaxBytesReader(w, r.Body, maxUploadBytes+uploadOverhead)}
	r.Body = prefix

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, nil, oversized(r, prefix.buf.Bytes())
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil, &ValidationError{Messages: []string{msgRequired}}
		}
		return nil, nil, &ValidationError{Messages: []string{msgFile}}
	}

	in := pdfUpload{}
	var (
		file   multipart.File
		header *multipart.FileHeader
	)

	if fhs := r.MultipartForm.File[uploadField]; len(fhs) > 0 {
		header = fhs[0]
		in.Provided = true
		in.IsFile = true
		in.Size = header.Size

		f, err := header.Open()
		if err != nil {
			in.IsFile = false
		} else {
			file = f
			in.MIME = sniff(f)
		}
	} else if vals := r.MultipartForm.Value[uploadField]; len(vals) > 0 && vals[0] != "" {
		in.Provided = true
	}

	if err := in.validate(); err != nil {
		if file != nil {
			file.Close()
		}
		return nil, nil, err
	}
	return file, header, nil
}

// oversized reports the size failure plus a MIME failure when the file
// part can be found in the bytes read before the cap was hit.
func oversized(r *http.Request, prefix []byte) error {
	in := pdfUpload{Provided: true, IsFile: true, MIME: pdfMIME, Size: maxUploadBytes + 1}
	if ct, ok := sniffPrefix(r.Header.Get("Content-Type"), prefix); ok {
		in.MIME = ct
	}
	return in.validate()
}

func sniffPrefix(contentType string, prefix []byte) (string, bool) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["boundary"] == "" {
		return "", false
	}

	mr := multipart.NewReader(bytes.NewReader(prefix), params["boundary"])
	for {
		part, err := mr.NextPart()
		if err != nil {
			return "", false
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			continue
		}

		buf := make([]byte, sniffLen)
		n, _ := io.ReadFull(part, buf)
		if n == 0 {
			return "", false
		}
		return http.DetectContentType(buf[:n]), true
	}
}

type prefixReader struct {
	r   io.ReadCloser
	buf bytes.Buffer
}

func (p *prefixReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if room := prefixLen - p.buf.Len(); room > 0 && n > 0 {
		p.buf.Write(b[:min(n, room)])
	}
	return n, err
}

func (p *prefixReader) Close() error {
	return p.r.Close()
}

// sniff detects the content type from the leading bytes and rewinds f.
func sniff(f multipart.File) string {
	buf := make([]byte, sniffLen)
	n, _ := f.Read(buf)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return ""
	}
	return http.DetectContentType(buf[:n])
}
