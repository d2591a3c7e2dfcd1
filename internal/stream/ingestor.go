package stream

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Inbound is one decoded stream entry: a message as the webhook published
// it. It lives only in the stream and the in-process queue.
type Inbound struct {
	From       string
	Body       string
	ReceivedAt string
}

// Ingestor reads new entries from the durable stream with a named consumer
// group and hands them to the processing queue. An entry is acknowledged
// and removed from the stream only after it has been pushed onto the queue,
// so delivery into the pipeline is at-least-once.
type Ingestor struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
	count    int64
	block    time.Duration
	out      chan<- Inbound
	logger   *slog.Logger
}

// NewIngestor wires an ingestor for the given stream and consumer group,
// delivering entries on out.
func NewIngestor(rdb *redis.Client, stream, group, consumer string, count int64, block time.Duration, out chan<- Inbound, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		rdb:      rdb,
		stream:   stream,
		group:    group,
		consumer: consumer,
		count:    count,
		block:    block,
		out:      out,
		logger:   logger,
	}
}

// EnsureGroup creates the consumer group, creating the stream with it if
// absent. An already-existing group is not an error.
func (i *Ingestor) EnsureGroup(ctx context.Context) error {
	err := i.rdb.XGroupCreateMkStream(ctx, i.stream, i.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	if err == nil {
		i.logger.Info("created consumer group", "stream", i.stream, "group", i.group)
	}
	return nil
}

// Run loops until ctx is cancelled, reading batches of new entries and
// pushing them onto the queue. Read errors are logged and treated as an
// empty round so transient broker hiccups do not kill the loop.
func (i *Ingestor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := i.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    i.group,
			Consumer: i.consumer,
			Streams:  []string{i.stream, ">"},
			Count:    i.count,
			Block:    i.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			i.logger.Error("read stream", "stream", i.stream, "group", i.group, "error", err)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				// Push before ack: if the push never happens the entry
				// stays pending and a future read redelivers it.
				select {
				case i.out <- decode(msg):
				case <-ctx.Done():
					return
				}

				if err := i.rdb.XAck(ctx, i.stream, i.group, msg.ID).Err(); err != nil {
					i.logger.Error("ack entry", "id", msg.ID, "error", err)
					continue
				}
				if err := i.rdb.XDel(ctx, i.stream, msg.ID).Err(); err != nil {
					i.logger.Error("delete entry", "id", msg.ID, "error", err)
				}
			}
		}
	}
}

func decode(msg redis.XMessage) Inbound {
	return Inbound{
		From:       field(msg, "From"),
		Body:       field(msg, "Body"),
		ReceivedAt: field(msg, "received_datetime"),
	}
}

func field(msg redis.XMessage, key string) string {
	if v, ok := msg.Values[key].(string); ok {
		return v
	}
	return ""
}
