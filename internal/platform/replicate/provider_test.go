package replicate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan/forge-api/internal/generation"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := New(Config{
		APIToken: "test-token",
		T2IModel: "stability-ai/sdxl:t2i-version",
		I2IModel: "stability-ai/sdxl:i2i-version",
		BaseURL:  srv.URL,
	}, srv.Client())
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

// predictionServer scripts a create response plus a sequence of poll
// responses, served in order with the last one repeating.
func predictionServer(t *testing.T, create string, polls ...string) (http.Handler, *atomic.Int32) {
	t.Helper()
	var pollCount atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/predictions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(create))
	})
	mux.HandleFunc("/predictions/", func(w http.ResponseWriter, r *http.Request) {
		i := int(pollCount.Add(1)) - 1
		if i >= len(polls) {
			i = len(polls) - 1
		}
		_, _ = w.Write([]byte(polls[i]))
	})
	return mux, &pollCount
}

func TestTextToImage_PollsUntilSucceeded(t *testing.T) {
	t.Parallel()

	handler, polls := predictionServer(t,
		`{"id":"pred-1","status":"starting"}`,
		`{"id":"pred-1","status":"starting"}`,
		`{"id":"pred-1","status":"processing"}`,
		`{"id":"pred-1","status":"succeeded","output":["https://replicate.delivery/a.png","https://replicate.delivery/b.png"]}`,
	)
	p := newTestProvider(t, handler)

	res, err := p.TextToImage(context.Background(), generation.Request{Prompt: "a fox", AspectRatio: "1:1", Steps: 30})

	require.NoError(t, err)
	assert.Equal(t, []string{"https://replicate.delivery/a.png", "https://replicate.delivery/b.png"}, res.URLs)
	assert.Equal(t, int32(3), polls.Load())
	assert.Equal(t, "stability-ai/sdxl:t2i-version", res.Meta["model"])
}

func TestTextToImage_SingleStringOutput(t *testing.T) {
	t.Parallel()

	handler, _ := predictionServer(t,
		`{"id":"pred-1","status":"starting"}`,
		`{"id":"pred-1","status":"succeeded","output":"https://replicate.delivery/solo.png"}`,
	)
	p := newTestProvider(t, handler)

	res, err := p.TextToImage(context.Background(), generation.Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://replicate.delivery/solo.png"}, res.URLs)
}

func TestImageToImage_SendsModelAndInput(t *testing.T) {
	t.Parallel()

	var created map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/predictions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		assert.Equal(t, "Token test-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"pred-2","status":"starting"}`))
	})
	mux.HandleFunc("/predictions/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pred-2","status":"succeeded","output":["https://replicate.delivery/v.png"]}`))
	})
	p := newTestProvider(t, mux)

	_, err := p.ImageToImage(context.Background(), generation.Request{
		Prompt: "restyle", ImageURL: "https://src/x.jpg", Strength: 0.6, Steps: 30,
	})

	require.NoError(t, err)
	assert.Equal(t, "stability-ai/sdxl:i2i-version", created["version"])
	input := created["input"].(map[string]any)
	assert.Equal(t, "https://src/x.jpg", input["image"])
	assert.InDelta(t, 0.6, input["strength"].(float64), 1e-9)
}

func TestGenerate_FailedPredictionIsPermanent(t *testing.T) {
	t.Parallel()

	handler, _ := predictionServer(t,
		`{"id":"pred-1","status":"starting"}`,
		`{"id":"pred-1","status":"failed","error":"NSFW content detected"}`,
	)
	p := newTestProvider(t, handler)

	_, err := p.TextToImage(context.Background(), generation.Request{Prompt: "x"})

	var perr *generation.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
	assert.Contains(t, perr.Message, "failed")
}

func TestGenerate_CanceledPredictionIsPermanent(t *testing.T) {
	t.Parallel()

	handler, polls := predictionServer(t,
		`{"id":"pred-1","status":"starting"}`,
		`{"id":"pred-1","status":"processing"}`,
		`{"id":"pred-1","status":"canceled"}`,
	)
	p := newTestProvider(t, handler)

	_, err := p.TextToImage(context.Background(), generation.Request{Prompt: "x"})

	var perr *generation.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
	assert.Contains(t, perr.Message, "canceled")
	// Polling stops at the terminal answer instead of burning the budget.
	assert.Equal(t, int32(2), polls.Load())
}

func TestGenerate_PollingTimeoutIsRetryable(t *testing.T) {
	t.Parallel()

	handler, polls := predictionServer(t,
		`{"id":"pred-1","status":"starting"}`,
		`{"id":"pred-1","status":"processing"}`,
	)
	p := newTestProvider(t, handler)

	_, err := p.TextToImage(context.Background(), generation.Request{Prompt: "x"})

	var perr *generation.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retryable)
	assert.Contains(t, perr.Message, "timeout")
	assert.Equal(t, int32(maxPollAttempts), polls.Load())
}

func TestGenerate_CancelledDuringPollWait(t *testing.T) {
	t.Parallel()

	handler, _ := predictionServer(t,
		`{"id":"pred-1","status":"starting"}`,
		`{"id":"pred-1","status":"processing"}`,
	)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := New(Config{APIToken: "test-token", T2IModel: "m", BaseURL: srv.URL}, srv.Client())

	ctx, cancel := context.WithCancel(context.Background())
	p.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := p.TextToImage(ctx, generation.Request{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_ServerErrorOnCreateIsRetryable(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := p.TextToImage(context.Background(), generation.Request{Prompt: "x"})

	var perr *generation.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retryable)
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
}

func TestGenerate_ClientErrorOnPollIsPermanent(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/predictions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pred-1","status":"starting"}`))
	})
	mux.HandleFunc("/predictions/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"invalid token"}`)
	})
	p := newTestProvider(t, mux)

	_, err := p.TextToImage(context.Background(), generation.Request{Prompt: "x"})

	var perr *generation.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
}

func TestGenerate_MissingPredictionIDIsPermanent(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"starting"}`))
	}))

	_, err := p.TextToImage(context.Background(), generation.Request{Prompt: "x"})

	var perr *generation.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
	assert.Contains(t, perr.Message, "prediction id")
}
