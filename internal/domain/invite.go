package domain

import "time"

// Invite grants a non-default role to whoever signs up with its token.
type Invite struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	InvitedBy string     `json:"invited_by"`
	Token     string     `json:"token,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
}

// Usable reports whether the invite can still be consumed at now.
func (i *Invite) Usable(now time.Time) bool {
	return i.UsedAt == nil && now.Before(i.ExpiresAt)
}

// InviteVerification is the public answer to a token lookup.
type InviteVerification struct {
	IsValid bool   `json:"is_valid"`
	Email   string `json:"email,omitempty"`
	Role    Role   `json:"role,omitempty"`
}

// IsInvitableRole reports whether r may be granted through an invite.
func IsInvitableRole(r Role) bool {
	return r == RoleAgent || r == RoleAdmin
}
