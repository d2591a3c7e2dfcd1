package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists account records in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed account store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert adds a new account record.
func (s *PostgresStore) Insert(ctx context.Context, account Account) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO accounts (fingerprint, username, created_at) VALUES ($1, $2, $3)`,
		account.Fingerprint, account.Username, account.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert account %s: %w", account.Username, err)
	}
	return nil
}

// List returns every account record.
func (s *PostgresStore) List(ctx context.Context) ([]Account, error) {
	rows, err := s.db.Query(ctx,
		`SELECT fingerprint, username, created_at FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Fingerprint, &a.Username, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// Delete removes the record keyed by fingerprint.
func (s *PostgresStore) Delete(ctx context.Context, fingerprint string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE fingerprint = $1`, fingerprint)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
