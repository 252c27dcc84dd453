package ai

import (
	"context"
	"net/http"

	"github.com/llmgram/llmgram/internal/logger"
)

// LocalAdapter talks to a local inference server. No auth, and the only
// model it knows is the configured one.
type LocalAdapter struct {
	*OpenAICompatibleAdapter
}

func NewLocalAdapter(
	descriptor *ProviderDescriptor,
	baseURL string,
	chatURL string,
	log logger.Logger,
	httpClient *http.Client,
) *LocalAdapter {
	baseAdapter := NewOpenAICompatibleAdapter(
		descriptor,
		baseURL,
		chatURL,
		"",
		log,
		nil,
		httpClient,
	)

	return &LocalAdapter{
		OpenAICompatibleAdapter: baseAdapter,
	}
}

func (a *LocalAdapter) Models(ctx context.Context) ([]ModelInfo, error) {
	return []ModelInfo{*a.ModelInfo()}, nil
}
