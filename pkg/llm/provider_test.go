package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/config"
)

func TestNewProviderOpenAI(t *testing.T) {
	p, err := NewProvider(config.LLMConfig{
		Provider: "openai",
		APIKey:   "sk-test",
	})

	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestNewProviderOpenAIRequiresKey(t *testing.T) {
	_, err := NewProvider(config.LLMConfig{Provider: "openai"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestNewProviderOllama(t *testing.T) {
	p, err := NewProvider(config.LLMConfig{
		Provider:    "ollama",
		OllamaURL:   "http://ollama:11434",
		OllamaModel: "llama3",
	})

	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
}

func TestNewProviderCaseInsensitive(t *testing.T) {
	p, err := NewProvider(config.LLMConfig{Provider: "OpenAI", APIKey: "sk-test"})

	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestNewProviderUnsupported(t *testing.T) {
	_, err := NewProvider(config.LLMConfig{Provider: "bard"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}
