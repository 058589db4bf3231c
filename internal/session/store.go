package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/authwire/internal/tokenfile"
)

// Store persists session credential material. Load returns (nil, nil) when
// nothing is stored. Clear is idempotent.
type Store interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Clear(ctx context.Context) error
}

// FileStore keeps the session in a JSON token file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the token file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the token file location.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(_ context.Context) (*Session, error) {
	tok, identity, err := tokenfile.Load(f.path)
	if err != nil || tok == nil {
		return nil, err
	}

	return &Session{Token: tok, Identity: IdentityFromMap(identity)}, nil
}

func (f *FileStore) Save(_ context.Context, s *Session) error {
	return tokenfile.Save(f.path, s.Token, s.Identity.Map())
}

func (f *FileStore) Clear(_ context.Context) error {
	return tokenfile.Remove(f.path)
}

// MemoryStore keeps the session in process memory only.
type MemoryStore struct {
	mu sync.Mutex
	s  *Session
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.s == nil {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	cp := *m.s
	if m.s.Token != nil {
		tok := *m.s.Token
		cp.Token = &tok
	}

	return &cp, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	if s.Token != nil {
		tok := *s.Token
		cp.Token = &tok
	}

	m.s = &cp

	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.s = nil
	m.mu.Unlock()

	return nil
}

// record is the blob format shared by the Redis and SQLite stores.
type record struct {
	Token    *oauth2.Token     `json:"token"`
	Identity map[string]string `json:"identity,omitempty"`
}

func encodeRecord(s *Session) ([]byte, error) {
	data, err := json.Marshal(record{Token: s.Token, Identity: s.Identity.Map()})
	if err != nil {
		return nil, fmt.Errorf("session: encoding: %w", err)
	}

	return data, nil
}

func decodeRecord(data []byte) (*Session, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("session: decoding: %w", err)
	}

	if r.Token == nil {
		return nil, fmt.Errorf("session: stored record missing token")
	}

	return &Session{Token: r.Token, Identity: IdentityFromMap(r.Identity)}, nil
}
