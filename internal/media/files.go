package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxDownloadBytes caps a single source download. Oversized media is a
// request problem, not something to buffer through the worker.
const MaxDownloadBytes = 200 << 20 // 200 MB

const userAgent = "forge-api/1.0"

// UUIDName builds a collision-free scratch file name like
// "src_9f1c...e2.mp4".
func UUIDName(prefix, ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s_%s%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", ""), ext)
}

// ExtFromURL guesses a file extension from a URL path, ignoring the query
// string. Returns def when the path has none.
func ExtFromURL(rawURL, def string) string {
	trimmed := rawURL
	if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}
	if ext := path.Ext(trimmed); ext != "" {
		return ext
	}
	return def
}

// Download fetches url into dst. The body is streamed to a temporary
// ".part" file and renamed into place on success, so a partial download
// never masquerades as a finished one. Downloads larger than
// MaxDownloadBytes are aborted.
func Download(ctx context.Context, client *http.Client, url, dst string) error {
	if client == nil {
		client = http.DefaultClient
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download failed (%d) %s", resp.StatusCode, url)
	}
	if resp.ContentLength > MaxDownloadBytes {
		return fmt.Errorf("download too large: %d bytes > %d", resp.ContentLength, MaxDownloadBytes)
	}

	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(resp.Body, MaxDownloadBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > MaxDownloadBytes {
		err = fmt.Errorf("download too large: exceeded %d bytes", MaxDownloadBytes)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}
