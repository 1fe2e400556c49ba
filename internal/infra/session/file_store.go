// File: internal/infra/session/file_store.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/repository"
	"storefront-checkout/internal/infra/security"
)

var _ repository.SessionStore = (*FileStore)(nil)

// FileStore persists {"token": ..., "user": "<json>"} in a single file,
// the same two keys the web storefront keeps in local storage.
type FileStore struct {
	mu     sync.Mutex
	path   string
	sealer *security.Sealer
}

type fileSession struct {
	Token string `json:"token"`
	User  string `json:"user"`
}

// NewFileStore builds the store; sealer may be nil to keep tokens in clear text.
func NewFileStore(path string, sealer *security.Sealer) *FileStore {
	return &FileStore{path: path, sealer: sealer}
}

func (s *FileStore) Load(_ context.Context) (*model.BackendSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var fsess fileSession
	if err := json.Unmarshal(b, &fsess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	token := fsess.Token
	if s.sealer != nil {
		if token, err = s.sealer.Open(fsess.Token); err != nil {
			return nil, fmt.Errorf("open session token: %w", err)
		}
	} else if security.IsSealed(token) {
		return nil, errors.New("session token is encrypted but no encryption key is configured")
	}
	if token == "" {
		return nil, domain.ErrNotFound
	}
	return &model.BackendSession{Token: token, User: model.ParseUser([]byte(fsess.User))}, nil
}

func (s *FileStore) Save(_ context.Context, sess *model.BackendSession) error {
	if sess.IsZero() {
		return fmt.Errorf("%w: empty session token", domain.ErrInvalidArgument)
	}
	token := sess.Token
	if s.sealer != nil {
		var err error
		if token, err = s.sealer.Seal(sess.Token); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(fileSession{Token: token, User: model.MarshalUser(sess.User)}, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
