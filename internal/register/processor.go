package register

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/handsonproduct/coder-sms-register/internal/coder"
	"github.com/handsonproduct/coder-sms-register/internal/ledger"
	"github.com/handsonproduct/coder-sms-register/internal/stream"
)

// AccountAPI is the slice of the remote account API the processor needs.
type AccountAPI interface {
	CreateUser(ctx context.Context, creds coder.Credentials) error
	DeleteUser(ctx context.Context, username string) error
}

// Notifier delivers generated credentials back to the sender.
type Notifier interface {
	SendCredentials(ctx context.Context, to, email, password string) error
}

// Processor consumes inbound messages from the work queue and runs each
// through the registration pipeline: sender shape check, fingerprint
// lookup, passphrase check, then the provisioning saga.
type Processor struct {
	accounts    ledger.Store
	api         AccountAPI
	notifier    Notifier
	passphrase  string
	emailDomain string
	in          <-chan stream.Inbound
	logger      *slog.Logger
	now         func() time.Time
}

// NewProcessor wires a processor reading from in.
func NewProcessor(accounts ledger.Store, api AccountAPI, notifier Notifier, passphrase, emailDomain string, in <-chan stream.Inbound, logger *slog.Logger) *Processor {
	return &Processor{
		accounts:    accounts,
		api:         api,
		notifier:    notifier,
		passphrase:  passphrase,
		emailDomain: emailDomain,
		in:          in,
		logger:      logger,
		now:         time.Now,
	}
}

// Run consumes the queue until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.in:
			p.Process(ctx, msg)
		}
	}
}

// Process runs one message through the pipeline. Every step returns a
// typed result consumed by the next; any failed step short-circuits the
// rest. Malformed senders and wrong passphrases get no reply: silence
// avoids acknowledging probes.
func (p *Processor) Process(ctx context.Context, msg stream.Inbound) {
	sender, ok := checkSender(msg.From)
	if !ok {
		p.logger.Warn("invalid sender number", "from", logSafe(msg.From))
		return
	}

	existing, err := p.findExisting(ctx, sender)
	if err != nil {
		p.logger.Error("account lookup failed", "error", err)
		return
	}
	if existing != "" {
		p.logger.Info("sender already registered", "username", existing)
		return
	}

	if !passphraseMatches(msg.Body, p.passphrase) {
		p.logger.Info("passphrase mismatch, dropping message")
		return
	}

	creds, err := p.provision(ctx, sender)
	if err != nil {
		p.logger.Error("provisioning failed", "error", err)
		return
	}

	email := creds.Username + "@" + p.emailDomain
	if err := p.notifier.SendCredentials(ctx, sender, email, creds.Password); err != nil {
		// The account exists and is reachable; rolling it back over a lost
		// text would destroy a valid registration. Manual follow-up needed.
		p.logger.Error("ALERT: account created but credentials were not delivered",
			"username", creds.Username, "error", err)
		return
	}

	p.logger.Info("registration complete", "username", creds.Username)
}

// findExisting scans every stored fingerprint for one derived from sender.
// The hashes are salted per record, so there is no direct key to look up.
func (p *Processor) findExisting(ctx context.Context, sender string) (string, error) {
	accounts, err := p.accounts.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list accounts: %w", err)
	}
	for _, a := range accounts {
		if fingerprintMatches(a.Fingerprint, sender) {
			return a.Username, nil
		}
	}
	return "", nil
}

// provision runs the saga: create the remote account, then persist the
// record. A failed create leaves nothing to compensate. A failed persist
// compensates by deleting the just-created remote account; if that also
// fails the orphan is logged loudly rather than silently lost.
func (p *Processor) provision(ctx context.Context, sender string) (coder.Credentials, error) {
	creds, err := coder.GenerateCredentials()
	if err != nil {
		return coder.Credentials{}, fmt.Errorf("generate credentials: %w", err)
	}

	if err := p.api.CreateUser(ctx, creds); err != nil {
		return coder.Credentials{}, err
	}

	hash, err := fingerprint(sender)
	if err == nil {
		err = p.accounts.Insert(ctx, ledger.Account{
			Fingerprint: hash,
			Username:    creds.Username,
			CreatedAt:   p.now().UTC(),
		})
	}
	if err != nil {
		p.logger.Error("persist failed, compensating with remote delete",
			"username", creds.Username, "error", err)
		if derr := p.api.DeleteUser(ctx, creds.Username); derr != nil {
			p.logger.Error("ALERT: orphaned remote account, compensation failed",
				"username", creds.Username, "error", derr)
		}
		return coder.Credentials{}, fmt.Errorf("persist account %s: %w", creds.Username, err)
	}

	return creds, nil
}
