// Package llm abstracts the language completion service used by the
// normalizer and the intent classifier. Providers implement Client; the
// pipeline owns the client it is given and never constructs one itself.
package llm

import (
	"context"
	"errors"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ErrUnavailable indicates the completion service could not be reached at
// all. It is distinct from a malformed response, which arrives as a
// successfully returned text the caller fails to parse.
var ErrUnavailable = errors.New("llm: completion service unavailable")

// ChatMessage is an internal message representation that can include system prompts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type Request struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// Client is the completion-service port.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
