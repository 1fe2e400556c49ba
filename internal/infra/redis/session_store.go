package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/repository"
	"storefront-checkout/internal/infra/security"
)

const (
	sessionKey            = "storefront:session"
	sessionFingerprintKey = "storefront:session:fp"
)

// clearIfToken deletes the session only while it still belongs to the given token fingerprint.
const clearIfToken = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1], KEYS[2])
	return 1
else
	return 0
end`

var (
	_ repository.SessionStore        = (*SessionStore)(nil)
	_ repository.GuardedSessionStore = (*SessionStore)(nil)
)

// SessionStore keeps the backend session in Redis so several storefront
// processes on one machine share a login.
type SessionStore struct {
	client RedisClient
	sealer *security.Sealer
	ttl    time.Duration
}

type storedSession struct {
	Token string `json:"token"`
	User  string `json:"user"`
}

// NewSessionStore builds the store; sealer may be nil to keep tokens in clear text.
func NewSessionStore(client RedisClient, sealer *security.Sealer, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, sealer: sealer, ttl: ttl}
}

func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *SessionStore) Load(ctx context.Context) (*model.BackendSession, error) {
	raw, err := s.client.Get(ctx, sessionKey)
	if errors.Is(err, Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var st storedSession
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	token := st.Token
	if s.sealer != nil {
		if token, err = s.sealer.Open(st.Token); err != nil {
			return nil, fmt.Errorf("open session token: %w", err)
		}
	}
	if token == "" {
		return nil, domain.ErrNotFound
	}
	return &model.BackendSession{Token: token, User: model.ParseUser([]byte(st.User))}, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *model.BackendSession) error {
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
	data, err := json.Marshal(storedSession{Token: token, User: model.MarshalUser(sess.User)})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKey, data, s.ttl); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return s.client.Set(ctx, sessionFingerprintKey, fingerprint(sess.Token), s.ttl)
}

func (s *SessionStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, sessionKey, sessionFingerprintKey)
}

// ClearIfToken atomically clears the session if it still holds token.
func (s *SessionStore) ClearIfToken(ctx context.Context, token string) (bool, error) {
	res, err := s.client.Eval(ctx, clearIfToken, []string{sessionFingerprintKey, sessionKey}, fingerprint(token))
	if err != nil {
		return false, fmt.Errorf("redis clear session: %w", err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}
