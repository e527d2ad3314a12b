package gpt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-dpo/api/internal/llm"
)

func TestExtractResponsesText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"output_text wins", `{"output_text":" hi ","output":[{"content":[{"type":"output_text","text":"other"}]}]}`, "hi"},
		{"concatenated parts", `{"output":[{"content":[{"type":"output_text","text":"a"},{"type":"refusal","text":"no"}]},{"content":[{"type":"text","text":"b"}]}]}`, "a\nb"},
		{"bad json", `not json`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractResponsesText([]byte(tt.raw)))
		})
	}
}

func TestInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/responses", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Equal(t, 0.3, body["temperature"])
		_, _ = w.Write([]byte(`{"output":[{"role":"assistant","content":[{"type":"output_text","text":"{\"ok\":true}"}]}]}`))
	}))
	defer srv.Close()

	e := New("k", "gpt-4o-mini").WithBaseURL(srv.URL + "/v1/")
	out, err := e.Invoke(context.Background(), "p", 0.3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestInvokeStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New("k", "m").WithBaseURL(srv.URL).Invoke(context.Background(), "p", 0, 0)
	var be *llm.BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusTooManyRequests, be.Status)
}

func TestInvokeWithoutKey(t *testing.T) {
	_, err := New("", "m").Invoke(context.Background(), "p", 0, 0)
	assert.True(t, errors.Is(err, llm.ErrBackend))
}
