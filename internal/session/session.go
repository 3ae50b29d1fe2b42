// Package session holds the local identity used by every helpline command:
// the bearer credential issued at login and a snapshot of the user profile.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoSession is returned when an operation needs an identity that is not stored.
var ErrNoSession = errors.New("session: not logged in")

// UserProfile is the profile snapshot captured at login.
type UserProfile struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Phone        string `json:"phone,omitempty"`
	VIPLevel     string `json:"vip_level,omitempty"`
	ReferralCode string `json:"referral_code,omitempty"`
	Role         string `json:"role,omitempty"`
}

// Session is the persisted identity. The zero value means logged out.
type Session struct {
	Credential string      `json:"credential"`
	Profile    UserProfile `json:"profile"`
}

// UserID returns the profile id, or "" when unknown.
func (s Session) UserID() string {
	return s.Profile.ID
}

// Authenticated reports whether both a credential and a user id are present.
func (s Session) Authenticated() bool {
	return s.Credential != "" && s.Profile.ID != ""
}

// Store persists a Session. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the stored session. A missing session is the zero
	// Session and a nil error.
	Get() (Session, error)
	// Set replaces the stored session.
	Set(Session) error
	// Clear removes the stored session.
	Clear() error
}

// Require returns the stored session or ErrNoSession when it is not
// authenticated.
func Require(s Store) (Session, error) {
	sess, err := s.Get()
	if err != nil {
		return Session{}, err
	}
	if !sess.Authenticated() {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// FileStore keeps the session as JSON in a single file with owner-only permissions.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore at path. The file is created lazily on Set.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("session: file path is required")
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

// Get reads the session file.
func (f *FileStore) Get() (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: read %s: %w", f.path, err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("session: decode %s: %w", f.path, err)
	}
	return s, nil
}

// Set writes the session file atomically.
func (f *FileStore) Set(s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("session: create dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("session: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("session: rename %s: %w", tmp, err)
	}
	return nil
}

// Clear deletes the session file. Clearing an absent session is not an error.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: remove %s: %w", f.path, err)
	}
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	sess Session
}

// NewMemoryStore creates a MemoryStore seeded with s.
func NewMemoryStore(s Session) *MemoryStore {
	return &MemoryStore{sess: s}
}

func (m *MemoryStore) Get() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess, nil
}

func (m *MemoryStore) Set(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = s
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = Session{}
	return nil
}
