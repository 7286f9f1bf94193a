package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_NoAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	_, err := NewClient(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini API key is required")
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := NewClient(context.Background(), Options{APIKey: "test-key"})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, client.ModelName())
	assert.Equal(t, DefaultTimeout, client.timeout)
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	client, err := NewClient(context.Background(), Options{APIKey: "test-key", Model: "gemini-test"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt cannot be empty")
}

func TestBuildConfig(t *testing.T) {
	client := &Client{modelName: "m", maxTokens: 512}

	cfg := client.buildConfig(Request{System: "be terse", Temperature: 0.2, JSON: true, Prompt: "p"})
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be terse", cfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, *cfg.Temperature, 1e-6)
	assert.Equal(t, int32(512), cfg.MaxOutputTokens)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)

	plain := client.buildConfig(Request{Prompt: "p", MaxTokens: 64})
	assert.Nil(t, plain.SystemInstruction)
	assert.Nil(t, plain.Temperature)
	assert.Equal(t, int32(64), plain.MaxOutputTokens)
	assert.Empty(t, plain.ResponseMIMEType)
}

func TestBuildConfig_ClientTemperature(t *testing.T) {
	client := &Client{modelName: "m", temperature: 0.5}

	fallback := client.buildConfig(Request{Prompt: "p"})
	require.NotNil(t, fallback.Temperature)
	assert.InDelta(t, 0.5, *fallback.Temperature, 1e-6)

	override := client.buildConfig(Request{Prompt: "p", Temperature: 0.9})
	require.NotNil(t, override.Temperature)
	assert.InDelta(t, 0.9, *override.Temperature, 1e-6)
}

func TestNewClient_KeepsTemperature(t *testing.T) {
	client, err := NewClient(context.Background(), Options{APIKey: "test-key", Temperature: 0.35})
	require.NoError(t, err)
	assert.InDelta(t, 0.35, client.temperature, 1e-6)
}
