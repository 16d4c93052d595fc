package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider implements Provider for Ollama (local models)
type OllamaProvider struct {
	url         string
	model       string
	temperature float64
	client      *http.Client
}

// OllamaRequest represents the Ollama API request
type OllamaRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature,omitempty"`
	Stream      bool    `json:"stream,omitempty"`
}

// OllamaResponse represents the Ollama API response
type OllamaResponse struct {
	Response      string `json:"response"`
	Done          bool   `json:"done"`
	TotalDuration int64  `json:"total_duration,omitempty"`
	EvalCount     int64  `json:"eval_count,omitempty"`
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(url, model string, temperature float64) (*OllamaProvider, error) {
	if url == "" {
		url = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}

	url = strings.TrimSuffix(url, "/")

	return &OllamaProvider{
		url:         url,
		model:       model,
		temperature: temperature,
		client: &http.Client{
			Timeout: 300 * time.Second,
		},
	}, nil
}

// Analyze sends the prompt to the local Ollama instance and returns the response text.
func (p *OllamaProvider) Analyze(ctx context.Context, prompt string) (string, error) {
	reqBody := OllamaRequest{
		Model:       p.model,
		Prompt:      prompt,
		Temperature: p.temperature,
		Stream:      false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/api/generate", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status: %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var ollamaResp OllamaResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return ollamaResp.Response, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}
