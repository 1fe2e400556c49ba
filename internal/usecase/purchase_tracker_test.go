//go:build !integration

package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/infra/diagnostics"

	"github.com/shopspring/decimal"
)

func TestPurchaseTracker_BeginRejectsInFlight(t *testing.T) {
	tr := NewPurchaseTracker(nil, nil, newTestLogger())
	ctx := context.Background()

	a, err := tr.Begin(ctx, "pro", model.AttemptOrder, decimal.NewFromInt(1599), "INR", nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if a.Status != model.PurchaseCreatingOrder || a.ID == "" {
		t.Fatalf("unexpected attempt %+v", a)
	}
	if tr.Purchasable("pro") {
		t.Error("plan with an attempt in flight must not be purchasable")
	}

	_, err = tr.Begin(ctx, "pro", model.AttemptOrder, decimal.NewFromInt(1599), "INR", nil)
	if !errors.Is(err, domain.ErrPurchaseInProgress) {
		t.Fatalf("expected ErrPurchaseInProgress, got %v", err)
	}

	// other keys are independent
	if _, err := tr.Begin(ctx, "basic", model.AttemptOrder, decimal.NewFromInt(499), "INR", nil); err != nil {
		t.Errorf("Begin for another plan: %v", err)
	}
}

func TestPurchaseTracker_ConcurrentBeginAdmitsOne(t *testing.T) {
	tr := NewPurchaseTracker(nil, nil, newTestLogger())
	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tr.Begin(context.Background(), "pro", model.AttemptOrder, decimal.NewFromInt(1), "INR", nil); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if admitted != 1 {
		t.Fatalf("admitted %d attempts, want exactly 1", admitted)
	}
}

func TestPurchaseTracker_Transitions(t *testing.T) {
	store := newMemAttemptStore()
	tr := NewPurchaseTracker(store, nil, newTestLogger())
	ctx := context.Background()
	a, _ := tr.Begin(ctx, "pro", model.AttemptOrder, decimal.NewFromInt(1599), "INR", nil)

	t.Run("invalid edge", func(t *testing.T) {
		_, err := tr.Set(ctx, "pro", a.ID, model.PurchaseSucceeded)
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("creating_order -> succeeded should be rejected, got %v", err)
		}
		if got := tr.Get("pro").Status; got != model.PurchaseCreatingOrder {
			t.Errorf("status changed to %s", got)
		}
	})

	t.Run("stale attempt id", func(t *testing.T) {
		_, err := tr.Set(ctx, "pro", "01OLDATTEMPT", model.PurchaseAwaitingPayment)
		if !errors.Is(err, domain.ErrStaleAttempt) {
			t.Fatalf("expected ErrStaleAttempt, got %v", err)
		}
	})

	t.Run("failure then reset", func(t *testing.T) {
		cause := domain.NewStepError("create_order", "pro", domain.ErrOrderCreationFailed, errors.New("boom"))
		failed, err := tr.Set(ctx, "pro", a.ID, model.PurchaseFailed, WithFailure(cause, model.NotCharged))
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if failed.ErrorKind != "order_creation_failed" || failed.Charged != model.NotCharged {
			t.Errorf("failure fields = %q/%q", failed.ErrorKind, failed.Charged)
		}
		if !tr.Purchasable("pro") {
			t.Error("failed attempt should allow a new purchase")
		}

		idle, err := tr.Set(ctx, "pro", a.ID, model.PurchaseIdle)
		if err != nil {
			t.Fatalf("failed -> idle: %v", err)
		}
		if idle.LastError != nil || idle.ErrorMessage != "" || idle.Charged != "" {
			t.Errorf("idle should clear error fields: %+v", idle)
		}
	})

	t.Run("mirrored", func(t *testing.T) {
		saved, found := store.Get("pro")
		if !found || saved.Status != model.PurchaseIdle {
			t.Errorf("mirror = %+v (found %v)", saved, found)
		}
	})
}

func TestPurchaseTracker_Restore(t *testing.T) {
	store := newMemAttemptStore(
		model.PurchaseAttempt{ID: "a1", PlanKey: "creating", Status: model.PurchaseCreatingOrder},
		model.PurchaseAttempt{ID: "a2", PlanKey: "open", Status: model.PurchaseAwaitingPayment, CheckoutSessionID: "cs"},
		model.PurchaseAttempt{ID: "a3", PlanKey: "verifying", PlanName: "Verifying", Status: model.PurchaseVerifying, PaymentID: "pay_9"},
		model.PurchaseAttempt{ID: "a4", PlanKey: "done", Status: model.PurchaseSucceeded},
	)
	diag := diagnostics.New(10, newTestLogger())
	tr := NewPurchaseTracker(store, diag, newTestLogger())

	if err := tr.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	want := map[string]struct {
		status  model.PurchaseStatus
		charged model.ChargeState
	}{
		"creating":  {model.PurchaseFailed, model.NotCharged},
		"open":      {model.PurchaseIdle, ""},
		"verifying": {model.PurchaseFailed, model.MaybeCharged},
		"done":      {model.PurchaseSucceeded, ""},
	}
	for key, w := range want {
		got := tr.Get(key)
		if got.Status != w.status || got.Charged != w.charged {
			t.Errorf("%s: got %s/%q, want %s/%q", key, got.Status, got.Charged, w.status, w.charged)
		}
		if saved, _ := store.Get(key); saved.Status != w.status {
			t.Errorf("%s: mirror not updated, has %s", key, saved.Status)
		}
	}
	if tr.Get("verifying").PaymentID != "pay_9" {
		t.Error("payment reference must survive restore")
	}
	if got := len(tr.Snapshot()); got != 4 {
		t.Errorf("snapshot has %d attempts", got)
	}

	for _, label := range []string{"Restore (creating)", "Restore (Verifying)"} {
		entry, found := diag.Latest(label)
		if !found || !strings.Contains(entry.Error, "interrupted by restart") {
			t.Errorf("%s: entry = %+v (found %v)", label, entry, found)
		}
	}
	if got := len(diag.Entries()); got != 2 {
		t.Errorf("only failed attempts are recorded, got %d entries", got)
	}
}
