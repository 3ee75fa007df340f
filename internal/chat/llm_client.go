package chat

import (
	"context"
	"time"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

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

type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient is the narrow surface both oracles depend on. Classification and
// compliance never see provider details, only text in and text out.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// TimeoutLLMClient bounds every completion call with a deadline. An expired
// deadline surfaces as an ordinary error, which the classifier degrades to
// unknown and the evaluator treats as a rejection.
type TimeoutLLMClient struct {
	inner   LLMClient
	timeout time.Duration
}

// NewTimeoutLLMClient wraps inner so no single oracle call can outlive
// timeout. A non-positive timeout falls back to 15 seconds.
func NewTimeoutLLMClient(inner LLMClient, timeout time.Duration) *TimeoutLLMClient {
	if inner == nil {
		panic("chat: inner LLM client cannot be nil")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TimeoutLLMClient{inner: inner, timeout: timeout}
}

func (c *TimeoutLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.inner.Complete(ctx, req)
}
