package auth

import (
	"context"
	"fmt"
)

// Mock signs in as a fixed identity without any network traffic.
type Mock struct {
	identity Identity
	points   int64
	creds    CredentialStore

	// Fail, when set, makes Authenticate fail with ErrAuthFailed.
	Fail error
}

func NewMock(identity Identity, points int64, creds CredentialStore) *Mock {
	if creds == nil {
		creds = &MemoryCredentials{}
	}
	return &Mock{identity: identity, points: points, creds: creds}
}

func (m *Mock) Authenticate(ctx context.Context) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if m.Fail != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrAuthFailed, m.Fail)
	}
	if err := m.creds.Save(Credentials{AccessToken: "mock-" + m.identity.ID, Identity: m.identity}); err != nil {
		return Identity{}, fmt.Errorf("%w: save credentials: %v", ErrAuthFailed, err)
	}
	return m.identity, nil
}

func (m *Mock) StoredIdentity() (Identity, bool) {
	c, ok, err := m.creds.Load()
	if err != nil || !ok {
		return Identity{}, false
	}
	return c.Identity, true
}

func (m *Mock) StoredToken() (string, bool) {
	c, ok, err := m.creds.Load()
	if err != nil || !ok {
		return "", false
	}
	return c.AccessToken, true
}

func (m *Mock) Logout() error {
	return m.creds.Clear()
}

func (m *Mock) InitialPoints(context.Context) (int64, error) {
	return m.points, nil
}
