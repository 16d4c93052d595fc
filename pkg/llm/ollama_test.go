package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaAnalyze(t *testing.T) {
	var gotReq OllamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(OllamaResponse{
			Response: "the upstream dependency is timing out",
			Done:     true,
		})
	}))
	defer server.Close()

	p, err := NewOllamaProvider(server.URL, "llama3", 0.2)
	require.NoError(t, err)

	got, err := p.Analyze(context.Background(), "what is wrong?")

	require.NoError(t, err)
	assert.Equal(t, "the upstream dependency is timing out", got)
	assert.Equal(t, "llama3", gotReq.Model)
	assert.Equal(t, "what is wrong?", gotReq.Prompt)
	assert.False(t, gotReq.Stream)
}

func TestOllamaAnalyzeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusInternalServerError)
	}))
	defer server.Close()

	p, err := NewOllamaProvider(server.URL, "llama3", 0)
	require.NoError(t, err)

	_, err = p.Analyze(context.Background(), "prompt")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestOllamaDefaults(t *testing.T) {
	p, err := NewOllamaProvider("", "", 0)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", p.url)
	assert.Equal(t, "llama3", p.model)
	assert.Equal(t, "ollama", p.Name())
}

func TestOllamaTrimsTrailingSlash(t *testing.T) {
	p, err := NewOllamaProvider("http://ollama:11434/", "llama3", 0)
	require.NoError(t, err)

	assert.Equal(t, "http://ollama:11434", p.url)
}
