package register

import (
	"context"
	"errors"
	"testing"

	"github.com/handsonproduct/coder-sms-register/internal/coder"
	"github.com/handsonproduct/coder-sms-register/internal/ledger"
	"github.com/handsonproduct/coder-sms-register/internal/logging"
	"github.com/handsonproduct/coder-sms-register/internal/stream"
)

const (
	testSender     = "+15551234567"
	testPassphrase = "let me in"
)

type fakeAPI struct {
	created   []coder.Credentials
	deleted   []string
	createErr error
	deleteErr error
}

func (f *fakeAPI) CreateUser(_ context.Context, creds coder.Credentials) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, creds)
	return nil
}

func (f *fakeAPI) DeleteUser(_ context.Context, username string) error {
	f.deleted = append(f.deleted, username)
	return f.deleteErr
}

type sentMessage struct {
	to       string
	email    string
	password string
}

type fakeNotifier struct {
	sent []sentMessage
	err  error
}

func (f *fakeNotifier) SendCredentials(_ context.Context, to, email, password string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: to, email: email, password: password})
	return nil
}

type failingStore struct {
	*ledger.MemoryStore
	insertErr error
}

func (s *failingStore) Insert(ctx context.Context, account ledger.Account) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.MemoryStore.Insert(ctx, account)
}

func newTestProcessor(store ledger.Store, api *fakeAPI, notifier *fakeNotifier) *Processor {
	return NewProcessor(store, api, notifier, testPassphrase, "example.com", nil, logging.Discard())
}

func TestProcessDropsInvalidSender(t *testing.T) {
	store := ledger.NewMemoryStore()
	api := &fakeAPI{}
	p := newTestProcessor(store, api, &fakeNotifier{})

	for _, from := range []string{"12345", "+4415551234567", "+1555123456", "not-a-number"} {
		p.Process(context.Background(), stream.Inbound{From: from, Body: testPassphrase})
	}

	if len(api.created) != 0 {
		t.Fatalf("expected no account creation, got %d", len(api.created))
	}
	accounts, _ := store.List(context.Background())
	if len(accounts) != 0 {
		t.Fatalf("expected empty ledger, got %d records", len(accounts))
	}
}

func TestProcessIgnoresExistingSender(t *testing.T) {
	store := ledger.NewMemoryStore()
	hash, err := fingerprint(testSender)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if err := store.Insert(context.Background(), ledger.Account{Fingerprint: hash, Username: "happy-tuna"}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	api := &fakeAPI{}
	p := newTestProcessor(store, api, &fakeNotifier{})
	p.Process(context.Background(), stream.Inbound{From: testSender, Body: testPassphrase})

	if len(api.created) != 0 {
		t.Fatalf("expected no creation for existing sender, got %d", len(api.created))
	}
	accounts, _ := store.List(context.Background())
	if len(accounts) != 1 {
		t.Fatalf("expected ledger unchanged, got %d records", len(accounts))
	}
}

func TestProcessRejectsWrongPassphrase(t *testing.T) {
	store := ledger.NewMemoryStore()
	api := &fakeAPI{}
	p := newTestProcessor(store, api, &fakeNotifier{})

	for _, body := range []string{"wrong words", "let me innn", "let me", ""} {
		p.Process(context.Background(), stream.Inbound{From: testSender, Body: body})
	}

	if len(api.created) != 0 {
		t.Fatalf("expected no account creation, got %d", len(api.created))
	}
}

func TestProcessAcceptsNormalizedPassphrase(t *testing.T) {
	store := ledger.NewMemoryStore()
	api := &fakeAPI{}
	p := newTestProcessor(store, api, &fakeNotifier{})

	p.Process(context.Background(), stream.Inbound{From: testSender, Body: "  Let Me In!  "})

	if len(api.created) != 1 {
		t.Fatalf("expected one account creation, got %d", len(api.created))
	}
}

func TestProcessProvisionsNewAccount(t *testing.T) {
	store := ledger.NewMemoryStore()
	api := &fakeAPI{}
	notifier := &fakeNotifier{}
	p := newTestProcessor(store, api, notifier)

	p.Process(context.Background(), stream.Inbound{From: testSender, Body: testPassphrase})

	if len(api.created) != 1 {
		t.Fatalf("expected exactly one creation call, got %d", len(api.created))
	}
	creds := api.created[0]

	accounts, _ := store.List(context.Background())
	if len(accounts) != 1 {
		t.Fatalf("expected exactly one ledger record, got %d", len(accounts))
	}
	if accounts[0].Username != creds.Username {
		t.Fatalf("ledger username %q does not match created %q", accounts[0].Username, creds.Username)
	}
	if !fingerprintMatches(accounts[0].Fingerprint, testSender) {
		t.Fatal("stored fingerprint does not match sender")
	}
	if accounts[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notifier.sent))
	}
	msg := notifier.sent[0]
	if msg.to != testSender {
		t.Fatalf("notification sent to %q", msg.to)
	}
	if msg.email != creds.Username+"@example.com" {
		t.Fatalf("unexpected login email %q", msg.email)
	}
	if msg.password != creds.Password {
		t.Fatal("notification password does not match generated credentials")
	}
}

func TestProcessIdempotentUnderResend(t *testing.T) {
	store := ledger.NewMemoryStore()
	api := &fakeAPI{}
	p := newTestProcessor(store, api, &fakeNotifier{})

	msg := stream.Inbound{From: testSender, Body: testPassphrase}
	p.Process(context.Background(), msg)
	p.Process(context.Background(), msg)

	if len(api.created) != 1 {
		t.Fatalf("expected one creation across resends, got %d", len(api.created))
	}
	accounts, _ := store.List(context.Background())
	if len(accounts) != 1 {
		t.Fatalf("expected one ledger record across resends, got %d", len(accounts))
	}
}

func TestProcessCompensatesWhenPersistFails(t *testing.T) {
	store := &failingStore{MemoryStore: ledger.NewMemoryStore(), insertErr: errors.New("disk full")}
	api := &fakeAPI{}
	notifier := &fakeNotifier{}
	p := newTestProcessor(store, api, notifier)

	p.Process(context.Background(), stream.Inbound{From: testSender, Body: testPassphrase})

	if len(api.created) != 1 {
		t.Fatalf("expected one creation call, got %d", len(api.created))
	}
	if len(api.deleted) != 1 {
		t.Fatalf("expected exactly one compensating delete, got %d", len(api.deleted))
	}
	if api.deleted[0] != api.created[0].Username {
		t.Fatalf("compensating delete targeted %q, created %q", api.deleted[0], api.created[0].Username)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("expected no notification after failed saga, got %d", len(notifier.sent))
	}
}

func TestProcessKeepsAccountWhenNotificationFails(t *testing.T) {
	store := ledger.NewMemoryStore()
	api := &fakeAPI{}
	notifier := &fakeNotifier{err: errors.New("carrier unavailable")}
	p := newTestProcessor(store, api, notifier)

	p.Process(context.Background(), stream.Inbound{From: testSender, Body: testPassphrase})

	if len(api.deleted) != 0 {
		t.Fatalf("notification failure must not trigger compensation, got %d deletes", len(api.deleted))
	}
	accounts, _ := store.List(context.Background())
	if len(accounts) != 1 {
		t.Fatalf("expected account record to remain, got %d", len(accounts))
	}
}

func TestProcessSkipsSagaWhenCreateFails(t *testing.T) {
	store := ledger.NewMemoryStore()
	api := &fakeAPI{createErr: errors.New("api down")}
	p := newTestProcessor(store, api, &fakeNotifier{})

	p.Process(context.Background(), stream.Inbound{From: testSender, Body: testPassphrase})

	if len(api.deleted) != 0 {
		t.Fatalf("nothing to compensate when creation fails, got %d deletes", len(api.deleted))
	}
	accounts, _ := store.List(context.Background())
	if len(accounts) != 0 {
		t.Fatalf("expected nothing persisted, got %d records", len(accounts))
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Let Me In!", "letmein"},
		{"  let\tme\nin?  ", "letmein"},
		{"LET ME IN...", "letmein"},
		{"let me in", "letmein"},
	}
	for _, c := range cases {
		if got := normalize(c.in); got != c.want {
			t.Fatalf("normalize(%q): expected %q, got %q", c.in, c.want, got)
		}
	}
}
