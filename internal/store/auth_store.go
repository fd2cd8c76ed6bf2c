package store

import (
	"context"
	"net/mail"
	"sync"

	"github.com/cozycabin/cozycabin/internal/api/dto"
	"github.com/cozycabin/cozycabin/internal/domain"
)

// AuthBackend is the part of the API the auth store uses.
type AuthBackend interface {
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, req dto.SignUpRequest) (*domain.Session, error)
	Me(ctx context.Context) (*domain.Profile, error)
	SetToken(token string)
}

// AuthState is a snapshot of the auth store.
type AuthState struct {
	Session *domain.Session
	Loading bool
	Error   string
}

// AuthStore tracks the signed-in principal.
type AuthStore struct {
	broadcaster

	backend AuthBackend

	mu    sync.Mutex
	state AuthState
}

// NewAuthStore creates a signed-out store.
func NewAuthStore(backend AuthBackend) *AuthStore {
	return &AuthStore{backend: backend}
}

// Snapshot returns a copy of the current state.
func (s *AuthStore) Snapshot() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state
	if s.state.Session != nil {
		session := *s.state.Session
		snapshot.Session = &session
	}
	return snapshot
}

// SignIn authenticates and stores the session.
func (s *AuthStore) SignIn(ctx context.Context, email, password string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return s.setError(&ValidationError{Field: "email", Message: "must be a valid email address"})
	}
	if password == "" {
		return s.setError(&ValidationError{Field: "password", Message: "is required"})
	}
	s.setLoading()
	session, err := s.backend.SignIn(ctx, email, password)
	return s.apply("signin", session, err)
}

// SignUp creates an account, optionally redeeming an invite token.
func (s *AuthStore) SignUp(ctx context.Context, req dto.SignUpRequest) error {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return s.setError(&ValidationError{Field: "email", Message: "must be a valid email address"})
	}
	if len(req.Password) < 8 {
		return s.setError(&ValidationError{Field: "password", Message: "must be at least 8 characters long"})
	}
	s.setLoading()
	session, err := s.backend.SignUp(ctx, req)
	return s.apply("signup", session, err)
}

// SignOut forgets the session.
func (s *AuthStore) SignOut() {
	s.backend.SetToken("")
	s.mu.Lock()
	s.state = AuthState{}
	s.mu.Unlock()
	s.notify("signout", "")
}

// Refresh reloads the profile of the current session, picking up role or
// active-flag changes made by an admin.
func (s *AuthStore) Refresh(ctx context.Context) error {
	s.setLoading()
	profile, err := s.backend.Me(ctx)
	s.mu.Lock()
	s.state.Loading = false
	if err != nil {
		s.state.Error = errorText(err)
	} else if s.state.Session != nil {
		s.state.Session.Profile = *profile
	}
	s.mu.Unlock()
	s.notify("refresh", "")
	return err
}

func (s *AuthStore) apply(action string, session *domain.Session, err error) error {
	if err == nil {
		s.backend.SetToken(session.Token)
	}
	s.mu.Lock()
	s.state.Loading = false
	if err != nil {
		s.state.Error = errorText(err)
	} else {
		s.state.Session = session
	}
	s.mu.Unlock()
	s.notify(action, "")
	return err
}

func (s *AuthStore) setLoading() {
	s.mu.Lock()
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()
}

func (s *AuthStore) setError(err error) error {
	s.mu.Lock()
	s.state.Error = errorText(err)
	s.mu.Unlock()
	s.notify("error", "")
	return err
}
