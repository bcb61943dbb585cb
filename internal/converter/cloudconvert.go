package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"pdfdocx-be/internal/logger"
	"pdfdocx-be/internal/metrics"

	"go.uber.org/zap"
)

const (
	cloudConvertAPI         = "https://api.cloudconvert.com"
	cloudConvertSyncAPI     = "https://sync.api.cloudconvert.com"
	cloudConvertSandboxAPI  = "https://api.sandbox.cloudconvert.com"
	cloudConvertSandboxSync = "https://sync.api.sandbox.cloudconvert.com"

	taskUpload  = "upload-pdf"
	taskConvert = "convert-to-docx"
	taskExport  = "export-docx"

	jobTimeout = 10 * time.Minute
)

type cloudConvert struct {
	apiKey     string
	apiURL     string
	syncURL    string
	httpClient *http.Client
	store      *TempStore
}

type ccFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type ccTask struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Operation string `json:"operation"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Result    struct {
		Form *struct {
			URL        string            `json:"url"`
			Parameters map[string]string `json:"parameters"`
		} `json:"form"`
		Files []ccFile `json:"files"`
	} `json:"result"`
}

type ccJob struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Tasks  []ccTask `json:"tasks"`
}

func (j *ccJob) task(name string) *ccTask {
	for i := range j.Tasks {
		if j.Tasks[i].Name == name {
			return &j.Tasks[i]
		}
	}
	return nil
}

func NewCloudConvert(apiKey string, sandbox bool, store *TempStore) Converter {
	c := &cloudConvert{
		apiKey:     apiKey,
		apiURL:     cloudConvertAPI,
		syncURL:    cloudConvertSyncAPI,
		httpClient: &http.Client{},
		store:      store,
	}
	if sandbox {
		c.apiURL = cloudConvertSandboxAPI
		c.syncURL = cloudConvertSandboxSync
	}
	return c
}

func (c *cloudConvert) Convert(ctx context.Context, src io.Reader, filename string) (string, error) {
	timer := metrics.StartTimer()
	log := logger.FromCtx(ctx).With(zap.String("file", filename))

	name, jobID, err := c.convert(ctx, src, filename)
	if err != nil {
		metrics.RecordConversion("error", timer)
		log.Error("CloudConvert conversion failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	metrics.RecordConversion("success", timer)
	log.Info("PDF converted successfully using CloudConvert",
		zap.String("output_file", name),
		zap.String("job_id", jobID),
		zap.Duration("took", timer.Duration()),
	)
	return name, nil
}

func (c *cloudConvert) convert(ctx context.Context, src io.Reader, filename string) (string, string, error) {
	if c.apiKey == "" {
		return "", "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	job, err := c.createJob(ctx)
	if err != nil {
		return "", "", fmt.Errorf("create job: %w", err)
	}

	upload := job.task(taskUpload)
	if upload == nil || upload.Result.Form == nil {
		return "", job.ID, errors.New("upload task has no form")
	}
	if err := c.upload(ctx, upload, src, filename); err != nil {
		return "", job.ID, fmt.Errorf("upload: %w", err)
	}

	job, err = c.wait(ctx, job.ID)
	if err != nil {
		return "", "", fmt.Errorf("wait: %w", err)
	}

	export := job.task(taskExport)
	if export == nil || export.Status != "finished" || len(export.Result.Files) == 0 {
		return "", job.ID, fmt.Errorf("job %s finished with status %q", job.ID, job.Status)
	}

	name, err := c.download(ctx, export.Result.Files[0].URL)
	if err != nil {
		return "", job.ID, fmt.Errorf("download: %w", err)
	}
	return name, job.ID, nil
}

func (c *cloudConvert) createJob(ctx context.Context) (*ccJob, error) {
	body := map[string]interface{}{
		"tasks": map[string]interface{}{
			taskUpload: map[string]interface{}{
				"operation": "import/upload",
			},
			taskConvert: map[string]interface{}{
				"operation":     "convert",
				"input":         taskUpload,
				"output_format": "docx",
			},
			taskExport: map[string]interface{}{
				"operation": "export/url",
				"input":     taskConvert,
			},
		},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v2/jobs", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doJob(req)
}

func (c *cloudConvert) wait(ctx context.Context, jobID string) (*ccJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.syncURL+"/v2/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	return c.doJob(req)
}

func (c *cloudConvert) doJob(req *http.Request) (*ccJob, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("cloudconvert error (%d): %s", resp.StatusCode, string(raw))
	}

	var envelope struct {
		Data ccJob `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// upload streams the PDF into the pre-signed form of the import task.
func (c *cloudConvert) upload(ctx context.Context, task *ccTask, src io.Reader, filename string) error {
	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		for k, v := range task.Result.Form.Parameters {
			if err := mw.WriteField(k, v); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		part, err := mw.CreateFormFile("file", filepath.Base(filename))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.Result.Form.URL, pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload rejected (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *cloudConvert) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status %d", resp.StatusCode)
	}

	f, err := c.store.Create()
	if err != nil {
		return "", err
	}
	name := filepath.Base(f.Name())

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return name, nil
}
