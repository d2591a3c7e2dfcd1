package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/handsonproduct/coder-sms-register/internal/coder"
	"github.com/handsonproduct/coder-sms-register/internal/ledger"
)

// WorkspaceAPI is the slice of the remote API the reaper needs.
type WorkspaceAPI interface {
	ListWorkspaces(ctx context.Context, username string) ([]coder.Workspace, error)
	DeleteWorkspace(ctx context.Context, id string) error
	DeleteUser(ctx context.Context, username string) error
}

// Reaper sweeps the account ledger on a fixed interval and deprovisions
// accounts older than the configured TTL. Teardown is low-frequency
// administrative work, so accounts are processed sequentially.
type Reaper struct {
	accounts ledger.Store
	api      WorkspaceAPI
	ttl      time.Duration
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger
	now      func() time.Time
	wait     func(ctx context.Context, d time.Duration)
}

// New wires a reaper over the given store and remote API.
func New(accounts ledger.Store, api WorkspaceAPI, ttl, interval, grace time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		accounts: accounts,
		api:      api,
		ttl:      ttl,
		interval: interval,
		grace:    grace,
		logger:   logger,
		now:      time.Now,
		wait:     wait,
	}
}

// Run ticks at the sweep interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep loads every account and deprovisions the expired ones.
func (r *Reaper) Sweep(ctx context.Context) {
	accounts, err := r.accounts.List(ctx)
	if err != nil {
		r.logger.Error("load accounts for sweep", "error", err)
		return
	}

	removed := 0
	for _, account := range accounts {
		if account.CreatedAt.Add(r.ttl).After(r.now()) {
			continue
		}
		if r.deprovision(ctx, account) {
			removed++
		}
	}

	if removed > 0 {
		r.logger.Info("sweep removed expired accounts", "count", removed)
	}
}

// deprovision tears one account down: stop-check the workspaces, request
// deletion of each, wait out the grace period, delete the remote user, and
// only then delete the ledger record. Any failed step aborts; the next
// sweep retries. The record must outlive the remote account, never the
// other way around.
func (r *Reaper) deprovision(ctx context.Context, account ledger.Account) bool {
	workspaces, err := r.api.ListWorkspaces(ctx, account.Username)
	if err != nil {
		r.logger.Error("list workspaces", "username", account.Username, "error", err)
		return false
	}

	for _, ws := range workspaces {
		if ws.Status != coder.BuildStatusStopped {
			r.logger.Info("workspace not stopped, deferring deprovision",
				"username", account.Username, "workspace_id", ws.ID, "status", ws.Status)
			return false
		}
	}

	for _, ws := range workspaces {
		if err := r.api.DeleteWorkspace(ctx, ws.ID); err != nil {
			r.logger.Error("delete workspace", "username", account.Username,
				"workspace_id", ws.ID, "error", err)
			return false
		}
	}

	// Workspace deletion is asynchronous on the remote side and reports no
	// completion signal; the fixed grace period is best-effort timing.
	r.wait(ctx, r.grace)

	if err := r.api.DeleteUser(ctx, account.Username); err != nil {
		r.logger.Error("delete user", "username", account.Username, "error", err)
		return false
	}

	if err := r.accounts.Delete(ctx, account.Fingerprint); err != nil {
		r.logger.Error("ALERT: user removed remotely but the ledger record remains",
			"username", account.Username, "error", err)
		return false
	}

	r.logger.Info("account deprovisioned", "username", account.Username)
	return true
}

func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
