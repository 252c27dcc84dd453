package ai

// RequestMessage is one message in a normalized provider payload.
type RequestMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProviderRequest is the wire payload for one provider attempt. Built by the
// normalizer, sent by an adapter. Deterministic: identical inputs marshal to
// identical bytes.
type ProviderRequest struct {
	Model    string           `json:"model"`
	Messages []RequestMessage `json:"messages"`
	Stream   bool             `json:"stream,omitempty"`

	ProviderID string `json:"-"`
}

// RawResponse is an uninterpreted provider reply. The adapter hands it over
// as-is; extracting meaning from the body is the normalizer's job.
type RawResponse struct {
	ProviderID string
	StatusCode int
	Body       []byte
}

type UsageDetails struct {
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
	CachedTokens    int `json:"cached_tokens,omitempty"`
}

type ModelUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// completionResponse is the openai-compatible body shape all adapter
// variants speak; the normalizer decodes RawResponse.Body into it.
type completionResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			Refusal   string     `json:"refusal,omitempty"`
			ToolCalls []ToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage ModelUsage     `json:"usage,omitzero"`
	Error *providerError `json:"error,omitzero"`
}

type providerError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

// NormalizedResult is the single internal result shape every provider
// response is folded into.
type NormalizedResult struct {
	ID         string
	ProviderID string
	Model      string
	Text       string
	ToolCalls  []ToolCall
	Usage      ModelUsage
}

// ModelInfo is the metadata an adapter reports for its configured model.
type ModelInfo struct {
	ID           string   `json:"id"`
	Provider     string   `json:"provider,omitzero"`
	Capabilities []string `json:"capabilities,omitzero"`
}
