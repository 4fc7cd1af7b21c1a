package cloudinary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the Cloudinary upload settings.
type Config struct {
	CloudName    string
	UploadPreset string
	Folder       string
	BaseURL      string
	Timeout      time.Duration
}

const defaultBaseURL = "https://api.cloudinary.com/v1_1"

// Uploader pushes files to Cloudinary's unsigned upload endpoint and
// implements generation.Uploader.
type Uploader struct {
	cfg    Config
	client *http.Client
}

// New creates an Uploader. client may be nil for a default with the
// configured timeout.
func New(cfg Config, client *http.Client) *Uploader {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Uploader{cfg: cfg, client: client}
}

// Configured reports whether the uploader has the settings it needs. Callers
// check this at startup so a missing preset fails the boot, not the first
// job.
func (u *Uploader) Configured() bool {
	return u.cfg.CloudName != "" && u.cfg.UploadPreset != ""
}

// UploadFile streams the file as a multipart form and returns the hosted
// secure URL. resourceType is Cloudinary's notion: "image", "video" or
// "auto".
func (u *Uploader) UploadFile(ctx context.Context, path string, resourceType string) (string, error) {
	if !u.Configured() {
		return "", fmt.Errorf("cloudinary not configured: cloud name and upload preset required")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload source: %w", err)
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		err := writeForm(form, f, filepath.Base(path), u.cfg)
		if cerr := form.Close(); err == nil {
			err = cerr
		}
		_ = pw.CloseWithError(err)
	}()

	endpoint := fmt.Sprintf("%s/%s/%s/upload", u.cfg.BaseURL, u.cfg.CloudName, resourceType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("cloudinary upload failed: status %d: %s", resp.StatusCode, truncate(string(raw), 500))
	}

	var out struct {
		SecureURL string `json:"secure_url"`
		URL       string `json:"url"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.SecureURL != "" {
		return out.SecureURL, nil
	}
	if out.URL != "" {
		return out.URL, nil
	}
	return "", fmt.Errorf("cloudinary response carried no url")
}

func writeForm(form *multipart.Writer, src io.Reader, filename string, cfg Config) error {
	if err := form.WriteField("upload_preset", cfg.UploadPreset); err != nil {
		return err
	}
	if cfg.Folder != "" {
		if err := form.WriteField("folder", cfg.Folder); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
