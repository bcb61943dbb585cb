package converter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeDocx = "PK\x03\x04 fake docx body"

type fakeCloudConvert struct {
	t        *testing.T
	srv      *httptest.Server
	uploaded string
	jobBody  map[string]interface{}
	status   string
}

func newFakeCloudConvert(t *testing.T, status string, wrap func(http.Handler) http.Handler) *fakeCloudConvert {
	f := &fakeCloudConvert{t: t, status: status}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v2/jobs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer cc-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.jobBody))

		fmt.Fprintf(w, `{"data":{"id":"job-1","status":"waiting","tasks":[
			{"id":"t1","name":"upload-pdf","operation":"import/upload","status":"waiting",
			 "result":{"form":{"url":"%s/upload","parameters":{"expires":"123","signature":"abc"}}}},
			{"id":"t2","name":"convert-to-docx","operation":"convert","status":"waiting"},
			{"id":"t3","name":"export-docx","operation":"export/url","status":"waiting"}
		]}}`, f.srv.URL)
	})

	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.FormValue("signature"))
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		assert.Equal(t, "report.pdf", header.Filename)

		b, _ := io.ReadAll(file)
		f.uploaded = string(b)
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("GET /v2/jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer cc-key", r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{"data":{"id":"job-1","status":"%s","tasks":[
			{"id":"t1","name":"upload-pdf","status":"finished"},
			{"id":"t2","name":"convert-to-docx","status":"finished"},
			{"id":"t3","name":"export-docx","status":"%s",
			 "result":{"files":[{"filename":"report.docx","url":"%s/files/report.docx"}]}}
		]}}`, f.status, f.status, f.srv.URL)
	})

	mux.HandleFunc("GET /files/report.docx", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		io.WriteString(w, fakeDocx)
	})

	var h http.Handler = mux
	if wrap != nil {
		h = wrap(mux)
	}
	f.srv = httptest.NewServer(h)
	t.Cleanup(f.srv.Close)
	return f
}

func newTestConverter(t *testing.T, f *fakeCloudConvert, apiKey string) (*cloudConvert, *TempStore) {
	store, err := NewTempStore(t.TempDir())
	require.NoError(t, err)

	c := NewCloudConvert(apiKey, false, store).(*cloudConvert)
	c.apiURL = f.srv.URL
	c.syncURL = f.srv.URL
	c.httpClient = f.srv.Client()
	return c, store
}

func TestCloudConvert_Convert(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFakeCloudConvert(t, "finished", nil)
		c, store := newTestConverter(t, f, "cc-key")

		name, err := c.Convert(context.Background(), strings.NewReader("%PDF-1.4 hello"), "report.pdf")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(name, "doc_"))
		assert.True(t, strings.HasSuffix(name, ".docx"))
		assert.Equal(t, "%PDF-1.4 hello", f.uploaded)

		tasks := f.jobBody["tasks"].(map[string]interface{})
		assert.Equal(t, "import/upload", tasks["upload-pdf"].(map[string]interface{})["operation"])
		assert.Equal(t, "docx", tasks["convert-to-docx"].(map[string]interface{})["output_format"])
		assert.Equal(t, "convert-to-docx", tasks["export-docx"].(map[string]interface{})["input"])

		b, err := os.ReadFile(filepath.Join(store.Dir, name))
		require.NoError(t, err)
		assert.Equal(t, fakeDocx, string(b))
	})

	t.Run("JobError", func(t *testing.T) {
		f := newFakeCloudConvert(t, "error", nil)
		c, store := newTestConverter(t, f, "cc-key")

		_, err := c.Convert(context.Background(), strings.NewReader("%PDF-1.4"), "report.pdf")
		assert.ErrorIs(t, err, ErrConversionFailed)

		entries, _ := os.ReadDir(store.Dir)
		assert.Empty(t, entries)
	})

	t.Run("MissingAPIKey", func(t *testing.T) {
		f := newFakeCloudConvert(t, "finished", nil)
		c, _ := newTestConverter(t, f, "")

		_, err := c.Convert(context.Background(), strings.NewReader("%PDF-1.4"), "report.pdf")
		assert.ErrorIs(t, err, ErrConversionFailed)
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.Nil(t, f.jobBody)
	})

	t.Run("Unauthorized", func(t *testing.T) {
		f := newFakeCloudConvert(t, "finished", func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"message":"Unauthenticated."}`)
			})
		})
		c, _ := newTestConverter(t, f, "wrong-key")

		_, err := c.Convert(context.Background(), strings.NewReader("%PDF-1.4"), "report.pdf")
		assert.ErrorIs(t, err, ErrConversionFailed)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("UploadReadError", func(t *testing.T) {
		f := newFakeCloudConvert(t, "finished", rejectUpload)
		c, _ := newTestConverter(t, f, "cc-key")

		_, err := c.Convert(context.Background(), io.MultiReader(strings.NewReader("%PDF"), errReader{}), "report.pdf")
		assert.ErrorIs(t, err, ErrConversionFailed)
	})
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("disk gone")
}

func rejectUpload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/upload" {
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func TestNewCloudConvert_Sandbox(t *testing.T) {
	c := NewCloudConvert("k", true, &TempStore{Dir: t.TempDir()}).(*cloudConvert)
	assert.Equal(t, cloudConvertSandboxAPI, c.apiURL)
	assert.Equal(t, cloudConvertSandboxSync, c.syncURL)

	prod := NewCloudConvert("k", false, &TempStore{Dir: t.TempDir()}).(*cloudConvert)
	assert.Equal(t, cloudConvertAPI, prod.apiURL)
}
