// Package llm defines the chat model contract used for answers and evaluation.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// ChatModel returns the assistant reply for a conversation.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
