package session

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/infra/security"

	"github.com/rs/zerolog"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	sealer, _ := security.NewSealer("key")
	store := NewFileStore(path, sealer)

	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	sess := &model.BackendSession{Token: "tok", User: model.User{ID: "u1", Name: "Asha", Email: "a@example.com"}}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), `"tok"`) {
		t.Error("token written in clear text")
	}
	got, err := store.Load(ctx)
	if err != nil || got.Token != "tok" || got.User.Name != "Asha" {
		t.Fatalf("Load = %+v, %v", got, err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Errorf("second Clear should be a no-op: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after Clear, got %v", err)
	}
}

func TestFileStore_ReadsLocalStorageShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	raw := `{"token":"plain","user":"{\"_id\":\"u9\",\"name\":\"Ravi\",\"email\":\"r@example.com\",\"role\":\"admin\"}"}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	sealer, _ := security.NewSealer("key")
	got, err := NewFileStore(path, sealer).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.User.ID != "u9" || got.Role() != model.RoleAdmin {
		t.Errorf("unexpected session: %+v role=%s", got, got.Role())
	}
}

func TestLoginRedirector(t *testing.T) {
	l := zerolog.New(io.Discard)
	r := NewLoginRedirector("/login", &l)
	if ok, _ := r.Pending(); ok {
		t.Fatal("fresh redirector should not be pending")
	}
	r.RedirectToLogin(context.Background(), "session expired")
	if ok, reason := r.Pending(); !ok || reason != "session expired" {
		t.Errorf("Pending = %v, %q", ok, reason)
	}
	r.Acknowledge()
	if ok, _ := r.Pending(); ok {
		t.Error("Acknowledge should clear the flag")
	}
}
