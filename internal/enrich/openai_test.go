package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/genricoloni/bluctl/internal/domain"
	"github.com/genricoloni/bluctl/internal/domain/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func TestOpenAILookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "gpt-test", req.Model)
		assert.Equal(t, _openAIMaxTokens, req.MaxTokens)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Contains(t, req.Messages[1].Content, `"Hello" by Adele`)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  A ballad.  "}}]}`))
	}))
	defer srv.Close()

	ai := NewOpenAI(zap.NewNop(), srv.URL, "secret", "gpt-test", "Be brief.", nil)
	entry, err := ai.Lookup(testContext(t), _track)
	require.NoError(t, err)
	assert.Equal(t, "A ballad.", entry.Description)
}

func TestOpenAIFallback(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }},
		{"no choices", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"choices":[]}`)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			ctrl := gomock.NewController(t)
			fallback := mocks.NewMockProvider(ctrl)
			fallback.EXPECT().
				Lookup(gomock.Any(), _track).
				Return(domain.EnrichmentEntry{Description: "from wikipedia"}, nil)

			ai := NewOpenAI(zap.NewNop(), srv.URL, "secret", "gpt-test", "", fallback)
			entry, err := ai.Lookup(context.Background(), _track)
			require.NoError(t, err)
			assert.Equal(t, "from wikipedia", entry.Description)
		})
	}
}

func TestOpenAIWithoutFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ai := NewOpenAI(zap.NewNop(), srv.URL, "secret", "gpt-test", "", nil)
	_, err := ai.Lookup(testContext(t), _track)
	assert.ErrorIs(t, err, domain.ErrTransport)
}
