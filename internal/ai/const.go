package ai

const (
	ProviderOpenrouter = "openrouter"
	ProviderOpenai     = "openai-compatible"
	ProviderLocal      = "local"

	CapabilityVision    = "supports-vision"
	CapabilityStreaming = "supports-streaming"
	CapabilityTools     = "supports-tools"
)
