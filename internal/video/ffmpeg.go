package video

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Tool wraps the ffmpeg and ffprobe binaries. The supported-filter set is
// probed once per process and cached.
type Tool struct {
	ffmpeg  string
	ffprobe string

	filtersOnce sync.Once
	filters     map[string]struct{}
}

// NewTool resolves the binaries, preferring an explicit path and falling
// back to PATH lookup. Missing binaries are detected lazily by Available.
func NewTool(ffmpegBin, ffprobeBin string) *Tool {
	return &Tool{
		ffmpeg:  resolveBin(ffmpegBin, "ffmpeg"),
		ffprobe: resolveBin(ffprobeBin, "ffprobe"),
	}
}

func resolveBin(configured, fallback string) string {
	if configured != "" {
		if path, err := exec.LookPath(configured); err == nil {
			return path
		}
		return configured
	}
	if path, err := exec.LookPath(fallback); err == nil {
		return path
	}
	return fallback
}

// Available reports whether both binaries run.
func (t *Tool) Available(ctx context.Context) bool {
	return exec.CommandContext(ctx, t.ffmpeg, "-version").Run() == nil &&
		exec.CommandContext(ctx, t.ffprobe, "-version").Run() == nil
}

func (t *Tool) version(ctx context.Context, bin string) string {
	out, err := exec.CommandContext(ctx, bin, "-version").Output()
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line)
}

// SupportsFilter reports whether the local ffmpeg build has the named
// filter. The first call runs `ffmpeg -hide_banner -filters` and caches the
// parsed set for the process lifetime.
func (t *Tool) SupportsFilter(ctx context.Context, name string) bool {
	t.filtersOnce.Do(func() {
		out, err := exec.CommandContext(ctx, t.ffmpeg, "-hide_banner", "-filters").Output()
		if err != nil {
			t.filters = map[string]struct{}{}
			return
		}
		t.filters = parseFilterList(string(out))
	})
	_, ok := t.filters[name]
	return ok
}

// parseFilterList extracts filter names from `ffmpeg -filters` output. Each
// filter line carries flags, the name, the io signature and a description;
// the name is the second whitespace-separated field.
func parseFilterList(out string) map[string]struct{} {
	names := make(map[string]struct{})
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "-") || strings.HasPrefix(line, "Filters:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if name := fields[1]; validFilterName(name) {
			names[name] = struct{}{}
		}
	}
	return names
}

func validFilterName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// Duration probes the media duration in seconds. Zero with a nil error
// means the container does not report one.
func (t *Tool) Duration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, t.ffprobe,
		"-v", "error", "-show_format", "-show_streams", "-of", "json", path).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}
	if probe.Format.Duration == "" {
		return 0, nil
	}
	d, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, nil
	}
	return d, nil
}

// Encode runs one ffmpeg pass with the fixed encoding profile and the given
// filter chain, streaming stderr lines to onLine as they arrive. A non-zero
// exit returns a *ProcessingError carrying the stderr tail.
func (t *Tool) Encode(ctx context.Context, srcPath, chain, dstPath string, onLine func(string)) error {
	args := []string{"-y", "-i", srcPath}
	if chain != "" {
		args = append(args, "-vf", chain)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "21",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-c:a", "aac",
		"-b:a", "128k",
		dstPath,
	)

	cmd := exec.CommandContext(ctx, t.ffmpeg, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	tail := newTailBuffer(maxStderrTail)
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanCRLines)
	for scanner.Scan() {
		line := scanner.Text()
		tail.WriteLine(line)
		if onLine != nil {
			onLine(line)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ProcessingError{Tail: tail.String()}
	}
	return nil
}

// Diag collects the health-endpoint diagnostics: binary paths, versions and
// availability of the filters the preset table relies on.
func (t *Tool) Diag(ctx context.Context) map[string]any {
	ok := t.Available(ctx)
	diag := map[string]any{
		"ok":          ok,
		"ffmpeg_bin":  t.ffmpeg,
		"ffprobe_bin": t.ffprobe,
	}
	if !ok {
		diag["filters"] = map[string]bool{}
		return diag
	}
	diag["ffmpeg_version"] = t.version(ctx, t.ffmpeg)
	diag["ffprobe_version"] = t.version(ctx, t.ffprobe)
	keyFilters := []string{"scale", "fps", "boxblur", "gblur", "vignette"}
	filters := make(map[string]bool, len(keyFilters))
	for _, f := range keyFilters {
		filters[f] = t.SupportsFilter(ctx, f)
	}
	diag["filters"] = filters
	return diag
}

// scanCRLines splits on both \n and \r, since ffmpeg rewrites its progress
// line with bare carriage returns.
func scanCRLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
