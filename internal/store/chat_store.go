package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/cozycabin/cozycabin/internal/api/dto"
	"github.com/cozycabin/cozycabin/internal/domain"
)

// AgentBackend is the admin assistant endpoint.
type AgentBackend interface {
	AdminAgent(ctx context.Context, history []domain.ChatMessage, newMessage string) (*dto.AdminAgentResponse, error)
}

// ChatState is a snapshot of the admin chat.
type ChatState struct {
	Messages []domain.ChatMessage
	// LastReplyHTML is the rendered form of the latest assistant turn.
	LastReplyHTML string
	Loading       bool
	Error         string
}

// AdminChatStore keeps the admin console conversation.
type AdminChatStore struct {
	broadcaster

	backend AgentBackend

	mu    sync.Mutex
	state ChatState
}

// NewAdminChatStore creates an empty conversation.
func NewAdminChatStore(backend AgentBackend) *AdminChatStore {
	return &AdminChatStore{backend: backend}
}

// Snapshot returns a copy of the current state.
func (s *AdminChatStore) Snapshot() ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state
	snapshot.Messages = slices.Clone(s.state.Messages)
	return snapshot
}

// Send appends the user turn, then asks the assistant. On failure the user
// turn stays and no assistant turn is added.
func (s *AdminChatStore) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		err := &ValidationError{Field: "message", Message: "is required"}
		s.mu.Lock()
		s.state.Error = err.Error()
		s.mu.Unlock()
		s.notify("error", "")
		return "", err
	}

	s.mu.Lock()
	history := slices.Clone(s.state.Messages)
	s.state.Messages = append(s.state.Messages, domain.ChatMessage{Role: domain.ChatRoleUser, Content: text})
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()
	s.notify("user", "")

	return s.ask(ctx, history, text)
}

// Retry resends the trailing user turn together with the full history.
func (s *AdminChatStore) Retry(ctx context.Context) (string, error) {
	s.mu.Lock()
	n := len(s.state.Messages)
	if n == 0 || s.state.Messages[n-1].Role != domain.ChatRoleUser {
		s.mu.Unlock()
		return "", nil
	}
	history := slices.Clone(s.state.Messages[:n-1])
	text := s.state.Messages[n-1].Content
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()

	return s.ask(ctx, history, text)
}

// Clear starts a new conversation.
func (s *AdminChatStore) Clear() {
	s.mu.Lock()
	s.state = ChatState{}
	s.mu.Unlock()
	s.notify("clear", "")
}

func (s *AdminChatStore) ask(ctx context.Context, history []domain.ChatMessage, text string) (string, error) {
	resp, err := s.backend.AdminAgent(ctx, history, text)

	s.mu.Lock()
	s.state.Loading = false
	if err != nil {
		s.state.Error = errorText(err)
	} else {
		s.state.Messages = append(s.state.Messages, domain.ChatMessage{Role: domain.ChatRoleAssistant, Content: resp.Reply})
		s.state.LastReplyHTML = resp.ReplyHTML
	}
	s.mu.Unlock()
	s.notify("assistant", "")
	if err != nil {
		return "", err
	}
	return resp.Reply, nil
}
