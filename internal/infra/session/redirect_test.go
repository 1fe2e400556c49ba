package session

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoginRedirector_PendingUntilAcknowledged(t *testing.T) {
	l := zerolog.New(io.Discard)
	r := NewLoginRedirector("http://localhost:3000/login", &l)

	if pending, _ := r.Pending(); pending {
		t.Fatal("fresh redirector should not be pending")
	}

	r.RedirectToLogin(context.Background(), "session_expired")
	pending, reason := r.Pending()
	if !pending || reason != "session_expired" {
		t.Fatalf("Pending() = %v, %q", pending, reason)
	}

	r.Acknowledge()
	if pending, reason := r.Pending(); pending || reason != "" {
		t.Errorf("after Acknowledge: %v, %q", pending, reason)
	}
	if r.LoginURL() != "http://localhost:3000/login" {
		t.Errorf("LoginURL() = %q", r.LoginURL())
	}
}

func TestLoginRedirector_ConcurrentRedirects(t *testing.T) {
	r := NewLoginRedirector("/login", nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RedirectToLogin(context.Background(), "unauthorized")
		}()
	}
	wg.Wait()

	if pending, reason := r.Pending(); !pending || reason != "unauthorized" {
		t.Errorf("Pending() = %v, %q", pending, reason)
	}
}
