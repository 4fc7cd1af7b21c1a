package shared

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"prompt":"a fox","steps":30}`))

	var body struct {
		Prompt string `json:"prompt"`
		Steps  int    `json:"steps"`
	}
	require.NoError(t, DecodeJSON(r, &body))
	assert.Equal(t, "a fox", body.Prompt)
	assert.Equal(t, 30, body.Steps)
}

func TestDecodeJSON_MalformedBody(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"prompt":`))
	var body struct{}
	assert.Error(t, DecodeJSON(r, &body))
}
