package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/llmgram/llmgram/internal/cache"
	"github.com/llmgram/llmgram/internal/logger"
)

const modelsCacheDuration = 30 * time.Minute

// OpenAICompatibleAdapter speaks the /chat/completions dialect shared by
// most hosted providers. Other variants embed it and override what differs.
type OpenAICompatibleAdapter struct {
	descriptor *ProviderDescriptor
	chatURL    string
	httpClient *baseHTTPClient
	cache      cache.Cache
	logger     logger.Logger
}

func NewOpenAICompatibleAdapter(
	descriptor *ProviderDescriptor,
	baseURL string,
	chatURL string,
	apiKey string,
	log logger.Logger,
	modelCache cache.Cache,
	httpClient *http.Client,
) *OpenAICompatibleAdapter {
	if chatURL == "" {
		chatURL = "/chat/completions"
	}

	return &OpenAICompatibleAdapter{
		descriptor: descriptor,
		chatURL:    strings.TrimPrefix(chatURL, "/"),
		httpClient: newBaseHTTPClient(httpClient, baseURL, apiKey, descriptor.RequestsPerMin, log),
		cache:      modelCache,
		logger:     log,
	}
}

func (a *OpenAICompatibleAdapter) ID() string {
	return a.descriptor.ID
}

func (a *OpenAICompatibleAdapter) ModelInfo() *ModelInfo {
	return &ModelInfo{
		ID:           a.descriptor.Model,
		Provider:     a.descriptor.ID,
		Capabilities: a.descriptor.Capabilities,
	}
}

// Send performs exactly one logical outbound call, retrying pure network
// blips internally. Classification of the response body belongs to the
// normalizer; Send only maps transport-level failures.
func (a *OpenAICompatibleAdapter) Send(ctx context.Context, request ProviderRequest) (*RawResponse, error) {
	return a.send(ctx, request, nil)
}

func (a *OpenAICompatibleAdapter) send(ctx context.Context, request ProviderRequest, headers map[string]string) (*RawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.descriptor.Timeout)
	defer cancel()

	var raw *RawResponse
	backoff := retry.WithMaxRetries(uint64(a.descriptor.MaxRetries), retry.NewConstant(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		response, err := a.doRequest(ctx, request, headers)
		if err != nil {
			var transportErr *TransportError
			if errors.As(err, &transportErr) && transportErr.Category == TransportNetwork {
				return retry.RetryableError(err)
			}
			return err
		}
		raw = response
		return nil
	})
	if err != nil {
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			return nil, transportErr
		}
		return nil, a.classifyError(err)
	}
	return raw, nil
}

func (a *OpenAICompatibleAdapter) doRequest(ctx context.Context, request ProviderRequest, headers map[string]string) (*RawResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, &TransportError{
			OriginalErr: err,
			ProviderID:  a.descriptor.ID,
			Category:    TransportNetwork,
			Message:     "marshal request failed",
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.chatURL, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, &TransportError{
			OriginalErr: err,
			ProviderID:  a.descriptor.ID,
			Category:    TransportNetwork,
			Message:     "create request failed",
		}
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, a.classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, a.classifyError(err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		transportErr := &TransportError{
			ProviderID: a.descriptor.ID,
			Category:   categoryForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP request failed with status code: %d", resp.StatusCode),
		}
		var errBody struct {
			Error providerError `json:"error"`
		}
		if len(body) > 0 {
			json.Unmarshal(body, &errBody)
			if errBody.Error.Message != "" {
				transportErr.Message = errBody.Error.Message
			}
		}
		return nil, transportErr
	}

	return &RawResponse{
		ProviderID: a.descriptor.ID,
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

func (a *OpenAICompatibleAdapter) classifyError(err error) *TransportError {
	category := TransportNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		category = TransportTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		category = TransportTimeout
	}
	return &TransportError{
		OriginalErr: err,
		ProviderID:  a.descriptor.ID,
		Category:    category,
		Message:     "network request failed",
	}
}

// Models lists the provider's advertised models, cached for half an hour.
func (a *OpenAICompatibleAdapter) Models(ctx context.Context) ([]ModelInfo, error) {
	cacheKey := "models:" + a.descriptor.ID
	if a.cache != nil {
		if data, found := a.cache.Get(cacheKey); found {
			var models []ModelInfo
			if err := json.Unmarshal(data, &models); err == nil {
				return models, nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, a.classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var modelsResponse struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &modelsResponse); err != nil {
		return nil, fmt.Errorf("decode models error: %w", err)
	}
	for i := range modelsResponse.Data {
		modelsResponse.Data[i].Provider = a.descriptor.ID
	}

	if a.cache != nil {
		if data, err := json.Marshal(modelsResponse.Data); err == nil {
			_ = a.cache.Set(cacheKey, data, modelsCacheDuration)
		}
	}

	return modelsResponse.Data, nil
}
