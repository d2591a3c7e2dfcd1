package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreInsertListDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	account := Account{Fingerprint: "hash-1", Username: "happy-tuna", CreatedAt: time.Now()}
	if err := store.Insert(ctx, account); err != nil {
		t.Fatalf("insert: %v", err)
	}

	accounts, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Username != "happy-tuna" {
		t.Fatalf("unexpected accounts: %+v", accounts)
	}

	if err := store.Delete(ctx, "hash-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	accounts, err = store.List(ctx)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(accounts) != 0 {
		t.Fatalf("expected empty store, got %d", len(accounts))
	}
}

func TestMemoryStoreRejectsDuplicateFingerprint(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	account := Account{Fingerprint: "hash-1", Username: "happy-tuna"}
	if err := store.Insert(ctx, account); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Insert(ctx, account); err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
}

func TestMemoryStoreDeleteMissing(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
