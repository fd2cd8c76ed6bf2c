package store

import (
	"context"
	"net/mail"
	"slices"
	"sync"

	"github.com/cozycabin/cozycabin/internal/domain"
)

// InviteBackend is the part of the API the invite store uses.
type InviteBackend interface {
	ListInvites(ctx context.Context) ([]domain.Invite, error)
	SendInvite(ctx context.Context, email string, role domain.Role) (string, error)
	VerifyInvite(ctx context.Context, token string) (*domain.InviteVerification, error)
}

// InviteState is a snapshot of the invite store.
type InviteState struct {
	Invites      []domain.Invite
	Verification *domain.InviteVerification
	Message      string
	Loading      bool
	Error        string
}

// InviteStore manages staff invitations.
type InviteStore struct {
	broadcaster

	backend InviteBackend

	mu    sync.Mutex
	state InviteState
}

// NewInviteStore creates an empty store.
func NewInviteStore(backend InviteBackend) *InviteStore {
	return &InviteStore{backend: backend}
}

// Snapshot returns a copy of the current state.
func (s *InviteStore) Snapshot() InviteState {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state
	snapshot.Invites = slices.Clone(s.state.Invites)
	if s.state.Verification != nil {
		verification := *s.state.Verification
		snapshot.Verification = &verification
	}
	return snapshot
}

// Load fetches the invite list.
func (s *InviteStore) Load(ctx context.Context) error {
	s.start()
	invites, err := s.backend.ListInvites(ctx)
	return s.end("load", err, func(state *InviteState) {
		state.Invites = invites
	})
}

// Create invites email as role and mails the signup link.
func (s *InviteStore) Create(ctx context.Context, email string, role domain.Role) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return s.end("create", &ValidationError{Field: "email", Message: "must be a valid email address"}, nil)
	}
	if !domain.IsInvitableRole(role) {
		return s.end("create", &ValidationError{Field: "role", Message: "must be one of [admin agent]"}, nil)
	}
	s.start()
	message, err := s.backend.SendInvite(ctx, email, role)
	return s.end("create", err, func(state *InviteState) {
		state.Message = message
	})
}

// Verify checks an invite token.
func (s *InviteStore) Verify(ctx context.Context, token string) (*domain.InviteVerification, error) {
	if token == "" {
		return nil, s.end("verify", &ValidationError{Field: "token", Message: "is required"}, nil)
	}
	s.start()
	verification, err := s.backend.VerifyInvite(ctx, token)
	if err := s.end("verify", err, func(state *InviteState) {
		state.Verification = verification
	}); err != nil {
		return nil, err
	}
	return verification, nil
}

func (s *InviteStore) start() {
	s.mu.Lock()
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()
}

func (s *InviteStore) end(action string, err error, mutate func(*InviteState)) error {
	s.mu.Lock()
	s.state.Loading = false
	if err != nil {
		s.state.Error = errorText(err)
	} else if mutate != nil {
		mutate(&s.state)
	}
	s.mu.Unlock()
	s.notify(action, "")
	return err
}
