package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cozycabin/cozycabin/internal/domain"
)

// Request is a provider-neutral chat completion request.
type Request struct {
	Model     string
	System    string
	Messages  []domain.ChatMessage
	MaxTokens int
}

// Response carries the assistant's reply.
type Response struct {
	Model        string
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// Provider completes a conversation.
type Provider interface {
	Complete(ctx context.Context, request Request) (*Response, error)
}

// ProviderError is a non-200 answer from the model API.
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("llm: provider returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("llm: provider returned %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the same request may succeed later.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
