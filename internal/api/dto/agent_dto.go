package dto

import "github.com/cozycabin/cozycabin/internal/domain"

// AdminAgentRequest is the admin console turn.
type AdminAgentRequest struct {
	Messages       []domain.ChatMessage `json:"messages" validate:"omitempty,max=100"`
	NewUserMessage string               `json:"newUserMessage"`
}

// AdminAgentResponse carries the assistant reply or an error.
type AdminAgentResponse struct {
	Reply     string `json:"reply"`
	ReplyHTML string `json:"reply_html,omitempty"`
	Error     string `json:"error,omitempty"`
}
