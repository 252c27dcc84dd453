package history

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatTurn is one exchange unit in a conversation. Immutable once appended.
type ChatTurn struct {
	Role     string
	Content  string
	MediaRef string
	// ProviderID is set for assistant turns only
	ProviderID string
	Timestamp  time.Time
}

func NewUserTurn(content, mediaRef string, at time.Time) ChatTurn {
	return ChatTurn{
		Role:      RoleUser,
		Content:   content,
		MediaRef:  mediaRef,
		Timestamp: at,
	}
}

func NewAssistantTurn(content, providerID string, at time.Time) ChatTurn {
	return ChatTurn{
		Role:       RoleAssistant,
		Content:    content,
		ProviderID: providerID,
		Timestamp:  at,
	}
}
