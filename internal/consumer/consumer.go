// Package consumer defines the handler contract applications implement to
// react to stream entries, and the default dispatch behavior (decode,
// invoke, apply outcome) the reactor runs for every batch it reads.
package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/redisreactor/reactor/internal/broker"
	"github.com/redisreactor/reactor/internal/entry"
	"github.com/redisreactor/reactor/internal/metrics"
	"github.com/redisreactor/reactor/internal/reactorerr"
)

// DeliveryStatus tags why ProcessEvent is being invoked for a given entry:
// a brand new delivery, or one reclaimed after sitting idle past a claim
// mode's threshold.
type DeliveryStatus int

const (
	// NewDelivery marks an entry read for the first time off the
	// group's ">" cursor.
	NewDelivery DeliveryStatus = iota
	// MinIdleElapsed marks an entry reclaimed by a claim mode after
	// exceeding its configured minimum idle time.
	MinIdleElapsed
)

func (s DeliveryStatus) String() string {
	if s == MinIdleElapsed {
		return "min_idle_elapsed"
	}
	return "new_delivery"
}

// Consumer is the application-supplied contract for one stream: how long
// to block per read, how many to read per cycle, how much to fan out, and
// what to do with each one. Decoding is done by the entry codec, not by
// the consumer.
type Consumer[E entry.Entry] interface {
	// XReadBlockTime bounds how long a single read cycle blocks waiting
	// for new entries before looping to re-check the cancellation token.
	XReadBlockTime() time.Duration

	// BatchSize bounds how many entries a single read cycle requests.
	BatchSize() int64

	// Concurrency bounds how many entries from one batch are dispatched
	// to ProcessEvent at once.
	Concurrency() int

	// ProcessEvent handles one decoded entry and reports its outcome.
	ProcessEvent(ctx context.Context, id string, event E, status DeliveryStatus) reactorerr.TaskOutcome
}

// ProcessEventStream decodes and dispatches msgs to c, fanning out up to
// c.Concurrency() at a time, and applies each resulting outcome against
// stream/group via b. It returns the first broker error encountered while
// applying an outcome; decode failures and handler domain errors are
// logged, leave the entry pending, and never abort the batch. logger may
// be nil.
func ProcessEventStream[E entry.Entry](ctx context.Context, logger *zap.Logger, b broker.Broker, c Consumer[E], stream, group string, msgs []broker.Message, status DeliveryStatus) error {
	if len(msgs) == 0 {
		return nil
	}

	limit := c.Concurrency()
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, m := range msgs {
		m := m
		g.Go(func() error {
			return ProcessStreamEntry(gctx, logger, b, c, stream, group, m, status)
		})
	}
	return g.Wait()
}

// ProcessStreamEntry decodes one message, invokes c.ProcessEvent, and
// applies the resulting outcome: Ack acknowledges the entry, Delete
// removes it from the stream, Skip leaves it pending silently, and a
// domain error is logged and also leaves it pending. logger may be nil.
func ProcessStreamEntry[E entry.Entry](ctx context.Context, logger *zap.Logger, b broker.Broker, c Consumer[E], stream, group string, m broker.Message, status DeliveryStatus) error {
	event, err := entry.Decode[E](m.Values)
	if err != nil {
		// A malformed entry can never be handled; leave it pending so a
		// claim mode eventually reclaims it, same as any other stuck
		// entry.
		logIfPresent(logger, "leaving undecodable stream entry pending", m.ID, err)
		return nil
	}

	metrics.EntriesDispatched.WithLabelValues(stream, group, status.String()).Inc()
	metrics.HandlersInFlight.WithLabelValues(stream, group).Inc()
	outcome := c.ProcessEvent(ctx, m.ID, event, status)
	metrics.HandlersInFlight.WithLabelValues(stream, group).Dec()

	switch outcome.Kind {
	case reactorerr.OutcomeAck:
		if err := b.Ack(ctx, stream, group, m.ID); err != nil {
			return err
		}
		metrics.EntriesAcked.WithLabelValues(stream, group).Inc()
		return nil
	case reactorerr.OutcomeDelete:
		if err := b.Delete(ctx, stream, m.ID); err != nil {
			return err
		}
		metrics.EntriesDeleted.WithLabelValues(stream, group).Inc()
		return nil
	case reactorerr.OutcomeError:
		metrics.EntriesFailed.WithLabelValues(stream, group).Inc()
		logIfPresent(logger, "handler reported a domain error", m.ID, outcome.Err)
		return nil
	case reactorerr.OutcomeSkip:
		metrics.EntriesSkipped.WithLabelValues(stream, group).Inc()
		return nil
	default:
		return nil
	}
}

func logIfPresent(logger *zap.Logger, msg, id string, err error) {
	if logger == nil {
		return
	}
	logger.Error(msg, zap.String("entry_id", id), zap.Error(err))
}
