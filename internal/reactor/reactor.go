// Package reactor implements the long-running two-loop pipeline that
// bootstraps a consumer group, reads new deliveries, concurrently reclaims
// abandoned entries from the group's pending list, and dispatches each to
// an application consumer under cooperative shutdown.
package reactor

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/redisreactor/reactor/internal/broker"
	"github.com/redisreactor/reactor/internal/consumer"
	"github.com/redisreactor/reactor/internal/entry"
	"github.com/redisreactor/reactor/internal/metrics"
	"github.com/redisreactor/reactor/internal/reactorctx"
	"github.com/redisreactor/reactor/internal/reactorerr"
)

// Reactor drives one consumer group identity: group bootstrap, the
// new-delivery loop, and the reclaim loop. A Reactor is constructed once
// per run context and is not reusable across a second Start/ClearIdleBacklog
// call once one has returned.
type Reactor[C consumer.Consumer[E], E entry.Entry] struct {
	rc       *reactorctx.RunContext
	broker   broker.Broker
	consumer C
	logger   *zap.Logger

	bootstrapOnce sync.Once
	groupState    ConsumerGroupState
}

// New constructs a Reactor bound to rc's identity, reading and writing
// through b, dispatching decoded entries to c. logger may be nil, in which
// case domain errors and decode failures are not logged anywhere.
func New[C consumer.Consumer[E], E entry.Entry](rc *reactorctx.RunContext, b broker.Broker, c C, logger *zap.Logger) *Reactor[C, E] {
	return &Reactor[C, E]{rc: rc, broker: b, consumer: c, logger: logger}
}

// GroupState reports the consumer group's bootstrap outcome. It is
// Uninitialized until the first Start or ClearIdleBacklog call.
func (r *Reactor[C, E]) GroupState() ConsumerGroupState { return r.groupState }

// ShutdownToken returns a context cancelled once the run context's
// ShutdownGracefully has been called.
func (r *Reactor[C, E]) ShutdownToken() context.Context { return r.rc.Done() }

// Start bootstraps the consumer group if needed, then runs the
// new-delivery loop and — depending on mode and the group's bootstrap
// state — the reclaim loop, concurrently. It resolves once every loop it
// started has exited: cleanly on cancellation, or with the first fatal
// error raised by any of them.
func (r *Reactor[C, E]) Start(ctx context.Context, mode ClaimMode) error {
	if err := r.bootstrapGroup(ctx); err != nil {
		return err
	}

	runCtx, stop := mergeShutdown(ctx, r.rc.Done())
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return r.processStream(gctx)
	})
	if mode.runsReclaim(r.groupState) {
		minIdle, maxIdle, hasMaxIdle := mode.bounds()
		g.Go(func() error {
			return r.processIdlePending(gctx, minIdle, maxIdle, hasMaxIdle, false)
		})
	}
	return g.Wait()
}

// ClearIdleBacklog bootstraps the group if needed and, only if the group
// pre-existed, runs the reclaim loop once to completion (until its cursor
// wraps back to the start) with no new-delivery loop alongside it. A
// newly created group has no backlog, so this is a no-op in that case.
func (r *Reactor[C, E]) ClearIdleBacklog(ctx context.Context, minIdle, maxIdle time.Duration) error {
	if err := r.bootstrapGroup(ctx); err != nil {
		return err
	}
	if r.groupState != PreviouslyCreated {
		return nil
	}

	runCtx, stop := mergeShutdown(ctx, r.rc.Done())
	defer stop()

	return r.processIdlePending(runCtx, minIdle, maxIdle, true, true)
}

func (r *Reactor[C, E]) bootstrapGroup(ctx context.Context) error {
	var result error
	r.bootstrapOnce.Do(func() {
		err := r.broker.CreateGroup(ctx, r.rc.StreamKey(), r.rc.GroupName())
		if err == nil {
			r.groupState = NewlyCreated
			return
		}
		if broker.IsBusyGroup(err) {
			r.groupState = PreviouslyCreated
			return
		}
		result = err
	})
	return result
}

// processStream is the new-delivery loop: a blocking group read followed
// by dispatch, repeated until cancellation or a fatal error.
func (r *Reactor[C, E]) processStream(ctx context.Context) error {
	bo := newLoopBackoff()

	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := r.broker.ReadGroup(ctx, r.rc.StreamKey(), r.rc.GroupName(), r.rc.ConsumerID(),
			r.consumer.XReadBlockTime(), r.consumer.BatchSize())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !r.awaitRetry(ctx, bo, err) {
				return err
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		bo.Reset()

		if len(msgs) == 0 {
			continue
		}

		if err := consumer.ProcessEventStream[E](ctx, r.logger, r.broker, r.consumer,
			r.rc.StreamKey(), r.rc.GroupName(), msgs, consumer.NewDelivery); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !r.awaitRetry(ctx, bo, err) {
				return err
			}
			continue
		}
		bo.Reset()
	}
}

// processIdlePending is the reclaim loop. When oneShot is true it returns
// once the autoclaim cursor wraps back to "0-0" after having advanced at
// least once (the ClearIdleBacklog convenience path); otherwise it runs
// for the reactor's lifetime and only returns on cancellation or a fatal
// error — a continuously scanning XAUTOCLAIM cursor has no natural end.
func (r *Reactor[C, E]) processIdlePending(ctx context.Context, minIdle, maxIdle time.Duration, hasMaxIdle, oneShot bool) error {
	bo := newLoopBackoff()
	cursor := "0-0"
	startedAt := time.Now()
	advanced := false

	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, next, err := r.broker.AutoClaim(ctx, r.rc.StreamKey(), r.rc.GroupName(), r.rc.ConsumerID(),
			minIdle, cursor, r.consumer.BatchSize())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !r.awaitRetry(ctx, bo, err) {
				return err
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		bo.Reset()

		if len(msgs) > 0 {
			metrics.EntriesReclaimed.WithLabelValues(r.rc.StreamKey(), r.rc.GroupName()).Add(float64(len(msgs)))
			if err := consumer.ProcessEventStream[E](ctx, r.logger, r.broker, r.consumer,
				r.rc.StreamKey(), r.rc.GroupName(), msgs, consumer.MinIdleElapsed); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if !r.awaitRetry(ctx, bo, err) {
					return err
				}
				continue
			}
			bo.Reset()
		}

		wrapped := advanced && next == "0-0"
		advanced = true
		cursor = next

		if oneShot && wrapped {
			return nil
		}

		if len(msgs) == 0 {
			budgetExceeded := hasMaxIdle && time.Since(startedAt) >= maxIdle
			if !budgetExceeded {
				if !sleepOrDone(ctx, minIdle/4) {
					return nil
				}
			}
		}
	}
}

// awaitRetry decides whether a loop should retry err. Non-transient
// errors (and backoff.Stop, meaning the policy gave up) are fatal;
// transient errors sleep for the next backoff interval, racing that sleep
// against ctx so shutdown stays prompt.
func (r *Reactor[C, E]) awaitRetry(ctx context.Context, bo backoff.BackOff, err error) bool {
	transient := reactorerr.IsTransient(err)
	metrics.BrokerErrors.WithLabelValues(r.rc.StreamKey(), r.rc.GroupName(), brokerOp(err), strconv.FormatBool(transient)).Inc()
	if !transient {
		return false
	}
	d := bo.NextBackOff()
	if d == backoff.Stop {
		return false
	}
	return sleepOrDone(ctx, d)
}

func brokerOp(err error) string {
	var be *reactorerr.BrokerError
	if errors.As(err, &be) {
		return be.Op
	}
	return "unknown"
}

func newLoopBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // retry transient failures for the life of the loop
	return b
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// mergeShutdown returns a context cancelled when either parent or shutdown
// is, along with a stop func that must be called to release the watcher
// goroutine once the merged context is no longer needed.
func mergeShutdown(parent, shutdown context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(shutdown, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
