// Package auth signs the player in with an external identity provider and
// keeps the resulting credentials between runs.
package auth

import (
	"context"
	"errors"
	"strings"
)

// ErrAuthFailed is returned when the provider refused or could not complete a
// sign-in. No credentials are stored in that case.
var ErrAuthFailed = errors.New("authentication failed")

type Identity struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Username is the name shown on the leaderboard.
func (i Identity) Username() string {
	if name := strings.TrimSpace(i.DisplayName); name != "" {
		return name
	}
	return i.Login
}

type Provider interface {
	// Authenticate runs the interactive sign-in and stores credentials.
	Authenticate(ctx context.Context) (Identity, error)
	// StoredIdentity returns the identity saved by a previous sign-in.
	StoredIdentity() (Identity, bool)
	StoredToken() (string, bool)
	Logout() error
	// InitialPoints is the point balance granted to a brand new player.
	InitialPoints(ctx context.Context) (int64, error)
}
