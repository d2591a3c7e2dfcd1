package stream

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/handsonproduct/coder-sms-register/internal/logging"
)

func setupIngestor(t *testing.T, out chan Inbound) (*Ingestor, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ing := NewIngestor(rdb, "sms_stream", "sms_consum_grp", "test-consumer", 10, 20*time.Millisecond, out, logging.Discard())
	if err := ing.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	return ing, rdb
}

func addEntry(t *testing.T, rdb *redis.Client, from, body string) {
	t.Helper()
	err := rdb.XAdd(context.Background(), &redis.XAddArgs{
		Stream: "sms_stream",
		Values: map[string]interface{}{
			"From":              from,
			"Body":              body,
			"received_datetime": "2024-01-02T03:04:05Z",
		},
	}).Err()
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	ing, _ := setupIngestor(t, make(chan Inbound, 1))

	// Second creation hits BUSYGROUP, which must not be an error.
	if err := ing.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("expected existing group to be tolerated, got %v", err)
	}
}

func TestRunDeliversThenAcksAndDeletes(t *testing.T) {
	out := make(chan Inbound, 1)
	ing, rdb := setupIngestor(t, out)

	addEntry(t, rdb, "+15551234567", "let me in")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		ing.Run(ctx)
		close(done)
	}()

	var msg Inbound
	select {
	case msg = <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	if msg.From != "+15551234567" || msg.Body != "let me in" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.ReceivedAt != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected received timestamp: %q", msg.ReceivedAt)
	}

	// The entry is removed from the stream only after hand-off.
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := rdb.XLen(context.Background(), "sms_stream").Result()
		if err != nil {
			t.Fatalf("xlen: %v", err)
		}
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected entry deleted after ack, stream length %d", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ingestor did not stop after cancellation")
	}
}

func TestUndeliveredEntryStaysInStream(t *testing.T) {
	// No reader on an unbuffered queue: the push cannot complete, so the
	// entry must stay unacknowledged for redelivery.
	out := make(chan Inbound)
	ing, rdb := setupIngestor(t, out)

	addEntry(t, rdb, "+15551234567", "let me in")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	ing.Run(ctx)

	n, err := rdb.XLen(context.Background(), "sms_stream").Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected entry retained in stream, length %d", n)
	}
}
