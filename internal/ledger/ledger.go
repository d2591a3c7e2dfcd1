package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no account row exists for the given fingerprint.
var ErrNotFound = errors.New("account not found")

// Account is one provisioned account. Records are immutable: they are
// inserted when the remote account is created and deleted when it is
// reclaimed, never updated.
type Account struct {
	// Fingerprint is the salted one-way hash of the sender's phone number.
	// The raw number is never stored.
	Fingerprint string
	Username    string
	CreatedAt   time.Time
}

// Store is the durable record of provisioned accounts and the sole source
// of truth for who currently has one.
type Store interface {
	Insert(ctx context.Context, account Account) error
	List(ctx context.Context) ([]Account, error)
	Delete(ctx context.Context, fingerprint string) error
}
