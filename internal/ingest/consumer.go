// Package ingest consumes upstream order events from Kafka and feeds them to
// the reconciliation engine. Events are buffered and flushed as one batch
// when the buffer fills or the flush interval elapses, so the engine's
// chunking and change detection apply to streamed orders exactly as they do
// to scheduled feed pulls.
//
// Delivery is at-least-once: offsets are committed only after the flush that
// contained the message, and reconciliation is idempotent, so a replay
// converges to all-skipped. Malformed or invalid events are committed and
// dropped; they would never become valid on redelivery.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/orderdesk/go-orders-backend/internal/services"
	"github.com/orderdesk/go-orders-backend/internal/upstream"
)

// reconciler is the slice of SyncService the consumer needs.
type reconciler interface {
	Reconcile(ctx context.Context, batch []upstream.Order, opts services.ReconcileOptions) services.BatchResult
}

// reader abstracts kafka.Reader so tests can script message sequences.
type reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

const (
	minBytes  = 1
	maxBytes  = 10 * 1024 * 1024
	retryBase = 300 * time.Millisecond
)

var newReader = func(cfg kafka.ReaderConfig) reader { return kafka.NewReader(cfg) }

// Decoder turns one message payload into an upstream order record.
type Decoder func([]byte, *upstream.Order) error

// Validator rejects records that must not reach the engine.
type Validator func(*upstream.Order) error

func defaultDecode(b []byte, o *upstream.Order) error {
	if err := json.Unmarshal(b, o); err != nil {
		return err
	}
	o.Raw = append([]byte(nil), b...)
	return nil
}

func defaultValidate(o *upstream.Order) error {
	if o.Number == "" {
		return fmt.Errorf("field number: empty")
	}
	if o.ID <= 0 {
		if _, err := strconv.ParseInt(strings.TrimSpace(o.Number), 10, 64); err != nil {
			return fmt.Errorf("field id: missing and number %q not numeric", o.Number)
		}
	}
	if o.Status == "" {
		return fmt.Errorf("field status: empty")
	}
	return nil
}

// Consumer reads order events and drives the reconciliation engine.
type Consumer struct {
	Brokers []string
	Topic   string
	Group   string

	Sync reconciler

	// FlushSize and FlushInterval bound how long an event can sit in the
	// buffer before it is reconciled.
	FlushSize     int
	FlushInterval time.Duration

	Log      zerolog.Logger
	Decode   Decoder
	Validate Validator

	RetryBase time.Duration
}

// NewConsumer constructs a Consumer with default decode/validate hooks.
func NewConsumer(brokers []string, topic, group string, sync reconciler, flushSize int, flushInterval time.Duration, log zerolog.Logger) *Consumer {
	if flushSize <= 0 {
		flushSize = 50
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Consumer{
		Brokers:       brokers,
		Topic:         topic,
		Group:         group,
		Sync:          sync,
		FlushSize:     flushSize,
		FlushInterval: flushInterval,
		Log:           log,
		Decode:        defaultDecode,
		Validate:      defaultValidate,
		RetryBase:     retryBase,
	}
}

// Run consumes until ctx is canceled. A buffered tail is flushed before
// returning so shutdown does not strand fetched events.
func (c *Consumer) Run(ctx context.Context) error {
	r := newReader(kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.Group,
		Topic:          c.Topic,
		MinBytes:       minBytes,
		MaxBytes:       maxBytes,
		CommitInterval: 0,
	})
	defer r.Close()

	c.Log.Info().
		Strs("brokers", c.Brokers).
		Str("topic", c.Topic).
		Str("group", c.Group).
		Msg("kafka reader connected")

	var (
		buf     []upstream.Order
		pending []kafka.Message
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		res := c.Sync.Reconcile(ctx, buf, services.ReconcileOptions{})
		c.Log.Info().
			Int("events", len(buf)).
			Int("created", res.Created).
			Int("updated", res.Updated).
			Int("skipped", res.Skipped).
			Int("errors", res.Errors).
			Msg("stream batch reconciled")
		// A canceled run left part (or all) of the batch unapplied. Leave
		// the offsets uncommitted so the group redelivers after restart;
		// replaying the applied part converges to skips.
		if res.Canceled {
			c.Log.Warn().
				Int("events", len(buf)).
				Msg("batch interrupted by shutdown; offsets left uncommitted")
			buf = buf[:0]
			pending = pending[:0]
			return
		}
		// Per-order errors are settled by the next scheduled feed pull;
		// holding offsets would only replay the same outcome.
		if err := r.CommitMessages(context.WithoutCancel(ctx), pending...); err != nil {
			c.Log.Error().Err(err).Msg("offset commit failed")
			c.backoff()
		}
		buf = buf[:0]
		pending = pending[:0]
	}

	for {
		fetchCtx, cancel := context.WithTimeout(ctx, c.FlushInterval)
		msg, err := r.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				flush()
				c.Log.Info().Msg("kafka consumer stopped")
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				flush()
				continue
			}
			c.Log.Error().Err(err).Msg("kafka fetch failed")
			return err
		}

		var ord upstream.Order
		if err := c.Decode(msg.Value, &ord); err != nil {
			c.Log.Warn().
				Str("topic", msg.Topic).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Err(err).
				Msg("malformed event dropped")
			_ = r.CommitMessages(ctx, msg)
			continue
		}
		if err := c.Validate(&ord); err != nil {
			c.Log.Warn().
				Str("number", ord.Number).
				Int64("offset", msg.Offset).
				Err(err).
				Msg("invalid event dropped")
			_ = r.CommitMessages(ctx, msg)
			continue
		}

		buf = append(buf, ord)
		pending = append(pending, msg)
		if len(buf) >= c.FlushSize {
			flush()
		}
	}
}

func (c *Consumer) backoff() {
	j := time.Duration(rand.Intn(200)) * time.Millisecond
	time.Sleep(c.RetryBase + j)
}
