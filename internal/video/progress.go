package video

import (
	"errors"
	"regexp"
	"strconv"
	"time"
)

// maxStderrTail bounds how much of ffmpeg's diagnostic stream is kept for
// error messages.
const maxStderrTail = 1200

// ProcessingError is a terminal transcode failure. It is never retried.
type ProcessingError struct {
	Tail string
}

func (e *ProcessingError) Error() string {
	return "ffmpeg failed: " + e.Tail
}

// ErrUnavailable means the ffmpeg/ffprobe binaries are not runnable.
var ErrUnavailable = errors.New("ffmpeg not available")

var timestampRe = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// parseTimestamp extracts the out-time from one ffmpeg progress line.
func parseTimestamp(line string) (float64, bool) {
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.ParseFloat(m[1], 64)
	min, _ := strconv.ParseFloat(m[2], 64)
	s, _ := strconv.ParseFloat(m[3], 64)
	return h*3600 + min*60 + s, true
}

// progressTracker turns ffmpeg progress lines into throttled, monotonically
// non-decreasing percentages. With a known duration the percentage is
// out-time/duration; without one each progress line advances by a fixed
// increment capped below 100.
type progressTracker struct {
	duration    float64
	minInterval time.Duration

	lastPct  int
	lastEmit time.Time
	now      func() time.Time
}

const (
	blindIncrement = 4
	blindCap       = 95
)

func newProgressTracker(duration float64, minInterval time.Duration) *progressTracker {
	return &progressTracker{
		duration:    duration,
		minInterval: minInterval,
		lastPct:     -1,
		now:         time.Now,
	}
}

// Feed consumes one stderr line and reports whether a new percentage should
// be published.
func (p *progressTracker) Feed(line string) (int, bool) {
	seconds, ok := parseTimestamp(line)
	if !ok {
		return 0, false
	}

	var pct int
	if p.duration > 0 {
		pct = int(seconds / p.duration * 100)
		if pct > 100 {
			pct = 100
		}
	} else {
		pct = p.lastPct + blindIncrement
		if pct > blindCap {
			pct = blindCap
		}
	}

	if pct <= p.lastPct {
		return 0, false
	}
	now := p.now()
	if !p.lastEmit.IsZero() && now.Sub(p.lastEmit) < p.minInterval {
		return 0, false
	}

	p.lastPct = pct
	p.lastEmit = now
	return pct, true
}

// tailBuffer keeps the last max bytes of the lines written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) WriteLine(line string) {
	if line == "" {
		return
	}
	if len(t.buf) > 0 {
		t.buf = append(t.buf, '\n')
	}
	t.buf = append(t.buf, line...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
