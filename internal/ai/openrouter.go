package ai

import (
	"context"
	"net/http"

	"github.com/llmgram/llmgram/internal/cache"
	"github.com/llmgram/llmgram/internal/logger"
)

type OpenRouterAdapter struct {
	*OpenAICompatibleAdapter
}

func NewOpenRouterAdapter(
	descriptor *ProviderDescriptor,
	baseURL string,
	chatURL string,
	apiKey string,
	log logger.Logger,
	modelCache cache.Cache,
	httpClient *http.Client,
) *OpenRouterAdapter {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	baseAdapter := NewOpenAICompatibleAdapter(
		descriptor,
		baseURL,
		chatURL,
		apiKey,
		log,
		modelCache,
		httpClient,
	)

	return &OpenRouterAdapter{
		OpenAICompatibleAdapter: baseAdapter,
	}
}

func (a *OpenRouterAdapter) Send(ctx context.Context, request ProviderRequest) (*RawResponse, error) {
	if request.Model == "" {
		request.Model = a.descriptor.Model
	}
	return a.send(ctx, request, map[string]string{
		"X-Title": "llmgram",
	})
}
