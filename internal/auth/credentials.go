package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Credentials is what a successful sign-in leaves behind.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Identity     Identity  `json:"identity"`
}

type CredentialStore interface {
	Load() (Credentials, bool, error)
	Save(c Credentials) error
	Clear() error
}

// FileCredentials keeps credentials as a JSON file readable only by the
// current user.
type FileCredentials struct {
	path string
}

func NewFileCredentials(dataDir string) *FileCredentials {
	return &FileCredentials{path: filepath.Join(dataDir, "credentials.json")}
}

func (f *FileCredentials) Path() string { return f.path }

func (f *FileCredentials) Save(c Credentials) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	body, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.path, body, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

func (f *FileCredentials) Load() (Credentials, bool, error) {
	body, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, false, nil
		}
		return Credentials{}, false, fmt.Errorf("read credentials: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(body, &c); err != nil {
		return Credentials{}, false, fmt.Errorf("decode credentials: %w", err)
	}
	if strings.TrimSpace(c.AccessToken) == "" || strings.TrimSpace(c.Identity.ID) == "" {
		return Credentials{}, false, nil
	}
	return c, true, nil
}

func (f *FileCredentials) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

type MemoryCredentials struct {
	mu    sync.Mutex
	creds *Credentials
}

func (m *MemoryCredentials) Load() (Credentials, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return Credentials{}, false, nil
	}
	return *m.creds, true, nil
}

func (m *MemoryCredentials) Save(c Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = &c
	return nil
}

func (m *MemoryCredentials) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	return nil
}
