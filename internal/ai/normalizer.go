package ai

import (
	"encoding/json"
	"strings"

	"github.com/llmgram/llmgram/internal/history"
)

// tokensPerChar is a crude but deterministic context estimate: roughly four
// characters per token plus per-message framing overhead.
const (
	charsPerToken        = 4
	messageTokenOverhead = 4
)

func estimateTokens(content string) int {
	return len(content)/charsPerToken + messageTokenOverhead
}

// BuildRequest converts a chat turn plus history into the provider's payload.
// Pure function: identical inputs produce byte-identical output. History is
// truncated oldest-first to fit the provider's context budget; the system
// prompt and the newest user turn are always kept.
func BuildRequest(descriptor *ProviderDescriptor, turns []history.ChatTurn, userTurn history.ChatTurn, systemPrompt string) ProviderRequest {
	budget := descriptor.MaxContextTokens
	if budget > 0 {
		budget -= estimateTokens(systemPrompt)
		budget -= estimateTokens(userTurn.Content)
	}

	var kept []history.ChatTurn
	switch {
	case descriptor.MaxContextTokens <= 0:
		kept = turns
	case budget <= 0:
		// The mandatory parts alone exhaust the budget, history is dropped
		// entirely.
	default:
		used := 0
		start := len(turns)
		// Walk newest-first so the most recent context survives.
		for i := len(turns) - 1; i >= 0; i-- {
			cost := estimateTokens(turns[i].Content)
			if used+cost > budget {
				break
			}
			used += cost
			start = i
		}
		kept = turns[start:]
	}

	messages := make([]RequestMessage, 0, len(kept)+2)
	if systemPrompt != "" {
		messages = append(messages, RequestMessage{Role: history.RoleSystem, Content: systemPrompt})
	}
	for _, turn := range kept {
		messages = append(messages, RequestMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, RequestMessage{Role: userTurn.Role, Content: userTurn.Content})

	return ProviderRequest{
		Model:      descriptor.Model,
		Messages:   messages,
		ProviderID: descriptor.ID,
	}
}

// ParseResponse folds a provider-specific body into the internal result
// shape. Failures are *ParseError with a reason the dispatcher can act on:
// "filtered" is terminal by default, "empty" and "malformed" fail over.
func ParseResponse(descriptor *ProviderDescriptor, raw *RawResponse) (*NormalizedResult, error) {
	var response completionResponse
	if err := json.Unmarshal(raw.Body, &response); err != nil {
		return nil, &ParseError{
			ProviderID: descriptor.ID,
			Reason:     ParseMalformed,
			Message:    "failed to unmarshal response: " + err.Error(),
		}
	}

	// Some providers report errors inside a 200 OK body.
	if response.Error != nil {
		if isContentPolicy(response.Error.Code, response.Error.Message) {
			return nil, &ParseError{
				ProviderID: descriptor.ID,
				Reason:     ParseFiltered,
				Message:    response.Error.Message,
			}
		}
		return nil, &ParseError{
			ProviderID: descriptor.ID,
			Reason:     ParseMalformed,
			Message:    response.Error.Message,
		}
	}

	if len(response.Choices) == 0 {
		return nil, &ParseError{
			ProviderID: descriptor.ID,
			Reason:     ParseEmpty,
			Message:    "no choices in response",
		}
	}

	choice := response.Choices[0]
	if choice.FinishReason == "content_filter" || choice.Message.Refusal != "" {
		return nil, &ParseError{
			ProviderID: descriptor.ID,
			Reason:     ParseFiltered,
			Message:    "content blocked by provider policy",
		}
	}
	if choice.Message.Content == "" && len(choice.Message.ToolCalls) == 0 {
		return nil, &ParseError{
			ProviderID: descriptor.ID,
			Reason:     ParseEmpty,
			Message:    "empty completion",
		}
	}

	result := &NormalizedResult{
		ID:         response.ID,
		ProviderID: descriptor.ID,
		Model:      descriptor.Model,
		Text:       choice.Message.Content,
		Usage:      response.Usage,
	}
	if descriptor.HasCapability(CapabilityTools) {
		result.ToolCalls = choice.Message.ToolCalls
	}
	return result, nil
}

func isContentPolicy(code, message string) bool {
	if code == "content_filter" || code == "content_policy_violation" {
		return true
	}
	return strings.Contains(strings.ToLower(message), "policy")
}
