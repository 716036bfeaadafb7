package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, ProviderGemini, config.Provider)
	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierStandard))
	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))
}

func TestGetModel_Fallback(t *testing.T) {
	config := &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite: "fallback-model",
		},
	}

	// Unknown tier should fallback to TierStandard, then TierLite
	assert.Equal(t, "fallback-model", config.GetModel("unknown"))
}

func TestGetModel_EmptyConfig(t *testing.T) {
	config := &Config{
		Provider: ProviderGemini,
		Models:   map[ModelTier]string{},
	}

	// Empty config should return empty string
	assert.Equal(t, "", config.GetModel(TierAdvanced))
}

func TestWithModel(t *testing.T) {
	config := DefaultConfig()
	newConfig := config.WithModel(TierAdvanced, "custom-model")

	// Original should be unchanged
	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))

	// New config should have custom model
	assert.Equal(t, "custom-model", newConfig.GetModel(TierAdvanced))

	// Other tiers should be copied
	assert.Equal(t, "gemini-2.5-flash-lite", newConfig.GetModel(TierLite))
}

func TestModelTierConstants(t *testing.T) {
	assert.Equal(t, ModelTier("lite"), TierLite)
	assert.Equal(t, ModelTier("standard"), TierStandard)
	assert.Equal(t, ModelTier("advanced"), TierAdvanced)
}

func TestWithModel_KeepsProviderSettings(t *testing.T) {
	config := DefaultOpenAIConfig()
	config.BaseURL = "http://localhost:8080/v1"

	newConfig := config.WithModel(TierLite, "local-model")
	assert.Equal(t, ProviderOpenAI, newConfig.Provider)
	assert.Equal(t, "http://localhost:8080/v1", newConfig.BaseURL)
}

func TestConfigFor(t *testing.T) {
	assert.Equal(t, ProviderOpenAI, ConfigFor("openai").Provider)
	assert.Equal(t, "gpt-4o-mini", ConfigFor("openai").GetModel(TierStandard))
	assert.Equal(t, ProviderGemini, ConfigFor("gemini").Provider)
	assert.Equal(t, ProviderGemini, ConfigFor("").Provider)
}

func TestTemperature(t *testing.T) {
	assert.InDelta(t, DefaultTemperature, DefaultConfig().temperature(), 1e-6)
	assert.InDelta(t, 0.5, (&Config{Temperature: 0.5}).temperature(), 1e-6)
}
