package falai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castellan/forge-api/internal/generation"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:      "test-key",
		T2IEndpoint: srv.URL + "/fal-ai/flux/dev",
		I2IEndpoint: srv.URL + "/fal-ai/flux/dev/image-to-image",
	}, srv.Client())
}

func TestTextToImage_ParsesImageObjectList(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"images":[{"url":"https://cdn.fal/a.png"},{"url":"https://cdn.fal/b.png"}],"seed":42}`))
	})

	seed := int64(7)
	res, err := p.TextToImage(context.Background(), generation.Request{
		Prompt: "a fox", AspectRatio: "1:1", Steps: 30, Seed: &seed,
	})

	require.NoError(t, err)
	assert.Equal(t, "Key test-key", gotAuth)
	assert.Equal(t, "a fox", gotBody["prompt"])
	assert.Equal(t, "1:1", gotBody["aspect_ratio"])
	assert.Equal(t, []string{"https://cdn.fal/a.png", "https://cdn.fal/b.png"}, res.URLs)
	assert.Equal(t, int64(7), res.Meta["seed"])
}

func TestTextToImage_ParsesAlternateShapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want []string
	}{
		{"string list", `{"images":["https://cdn.fal/a.png"]}`, []string{"https://cdn.fal/a.png"}},
		{"single image", `{"image":"https://cdn.fal/solo.png"}`, []string{"https://cdn.fal/solo.png"}},
		{"output string", `{"output":"https://cdn.fal/out.png"}`, []string{"https://cdn.fal/out.png"}},
		{"output list", `{"output":["https://cdn.fal/1.png","https://cdn.fal/2.png"]}`, []string{"https://cdn.fal/1.png", "https://cdn.fal/2.png"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			body := tc.body
			want := tc.want
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			res, err := p.TextToImage(context.Background(), generation.Request{Prompt: "x"})
			require.NoError(t, err)
			assert.Equal(t, want, res.URLs)
		})
	}
}

func TestImageToImage_SendsSourceImage(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"images":["https://cdn.fal/v.png"]}`))
	})

	_, err := p.ImageToImage(context.Background(), generation.Request{
		Prompt: "restyle", ImageURL: "https://src/x.jpg", Strength: 0.6, Steps: 30,
	})

	require.NoError(t, err)
	assert.Equal(t, []any{"https://src/x.jpg"}, gotBody["image_urls"])
	assert.InDelta(t, 0.6, gotBody["strength"].(float64), 1e-9)
	assert.Equal(t, float64(30), gotBody["num_inference_steps"])
}

func TestGenerate_ServerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.TextToImage(context.Background(), generation.Request{Prompt: "x"})

	var perr *generation.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retryable)
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
}

func TestGenerate_ClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"prompt rejected"}`))
	})

	_, err := p.TextToImage(context.Background(), generation.Request{Prompt: "x"})

	var perr *generation.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
	assert.Contains(t, perr.Message, "prompt rejected")
}

func TestGenerate_EmptyResponseIsPermanent(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"images":[]}`))
	})

	_, err := p.TextToImage(context.Background(), generation.Request{Prompt: "x"})

	var perr *generation.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
}

func TestGenerate_MissingKeyFailsFast(t *testing.T) {
	t.Parallel()

	p := New(Config{T2IEndpoint: "http://unused"}, nil)
	_, err := p.TextToImage(context.Background(), generation.Request{Prompt: "x"})

	var perr *generation.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
}
