package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/workcrew/internal/backend"
	"github.com/Iron-Ham/workcrew/internal/model"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL
		o.Models = map[string]string{"small": "gpt-test"}
	})
}

func TestCall_Success(t *testing.T) {
	var gotModel string
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		gotModel, _ = req["model"].(string)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "cmpl_1", "object": "chat.completion", "created": 1, "model": "gpt-test",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "done"}}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 1, "total_tokens": 10}
		}`)
	})

	resp, err := b.Call(context.Background(), "small", "finish")
	require.NoError(t, err)
	assert.Equal(t, "gpt-test", gotModel)
	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, int64(9), resp.Usage.InputTokens)
	assert.Equal(t, int64(1), resp.Usage.OutputTokens)
}

func TestCall_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   model.AttemptOutcome
	}{
		{http.StatusTooManyRequests, model.OutcomeRateLimited},
		{http.StatusRequestTimeout, model.OutcomeTimeout},
		{http.StatusUnauthorized, model.OutcomeError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"x"}}`)
			})
			_, err := b.Call(context.Background(), "small", "p")
			require.Error(t, err)
			assert.Equal(t, tt.want, backend.Classify(err))
		})
	}
}

func TestCall_NoChoices(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"gpt-test","choices":[]}`)
	})
	_, err := b.Call(context.Background(), "small", "p")
	require.Error(t, err)
	assert.Equal(t, model.OutcomeError, backend.Classify(err))
}

func TestModelFor(t *testing.T) {
	b := New()
	m, err := b.ModelFor("large")
	require.NoError(t, err)
	assert.Equal(t, DefaultModels["large"], m)

	_, err = b.ModelFor("enormous")
	assert.Error(t, err)
}
