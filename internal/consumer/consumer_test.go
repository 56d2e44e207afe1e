package consumer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redisreactor/reactor/internal/broker"
	"github.com/redisreactor/reactor/internal/reactorerr"
)

// fakeBroker is a minimal in-memory broker.Broker double recording every
// Ack/Delete call, grounded on the retrieved fake-Redis test pattern used
// for claim/drain testing.
type fakeBroker struct {
	mu      sync.Mutex
	acked   []string
	deleted []string
	ackErr  error
}

func (f *fakeBroker) CreateGroup(ctx context.Context, stream, group string) error { return nil }

func (f *fakeBroker) ReadGroup(ctx context.Context, stream, group, consumer string, block time.Duration, count int64) ([]broker.Message, error) {
	return nil, nil
}

func (f *fakeBroker) AutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, cursor string, count int64) ([]broker.Message, string, error) {
	return nil, "0-0", nil
}

func (f *fakeBroker) Ack(ctx context.Context, stream, group, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acked = append(f.acked, id)
	return nil
}

func (f *fakeBroker) Delete(ctx context.Context, stream, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type testEvent struct {
	Op string `json:"op"`
}

func (testEvent) IsReactorEntry() {}

type scriptedConsumer struct {
	block       time.Duration
	batch       int64
	concurrency int
	outcome     func(id string) reactorerr.TaskOutcome
	seen        int32
}

func (c *scriptedConsumer) XReadBlockTime() time.Duration { return c.block }
func (c *scriptedConsumer) BatchSize() int64              { return c.batch }
func (c *scriptedConsumer) Concurrency() int              { return c.concurrency }
func (c *scriptedConsumer) ProcessEvent(ctx context.Context, id string, event testEvent, status DeliveryStatus) reactorerr.TaskOutcome {
	atomic.AddInt32(&c.seen, 1)
	return c.outcome(id)
}

func msg(id, op string) broker.Message {
	return broker.Message{ID: id, Values: map[string][]byte{"op": []byte(op)}}
}

func TestProcessStreamEntry_AckOutcomeAcksEntry(t *testing.T) {
	fb := &fakeBroker{}
	c := &scriptedConsumer{concurrency: 1, outcome: func(string) reactorerr.TaskOutcome { return reactorerr.Ack() }}

	err := ProcessStreamEntry[testEvent](context.Background(), nil, fb, c, "orders", "workers", msg("1-0", "x"), NewDelivery)
	require.NoError(t, err)
	assert.Equal(t, []string{"1-0"}, fb.acked)
	assert.Empty(t, fb.deleted)
}

func TestProcessStreamEntry_DeleteOutcomeDeletesEntry(t *testing.T) {
	fb := &fakeBroker{}
	c := &scriptedConsumer{concurrency: 1, outcome: func(string) reactorerr.TaskOutcome { return reactorerr.Delete() }}

	err := ProcessStreamEntry[testEvent](context.Background(), nil, fb, c, "orders", "workers", msg("1-0", "x"), NewDelivery)
	require.NoError(t, err)
	assert.Equal(t, []string{"1-0"}, fb.deleted)
	assert.Empty(t, fb.acked)
}

func TestProcessStreamEntry_SkipAndFailLeaveEntryPending(t *testing.T) {
	fb := &fakeBroker{}
	cSkip := &scriptedConsumer{concurrency: 1, outcome: func(string) reactorerr.TaskOutcome { return reactorerr.Skip() }}
	require.NoError(t, ProcessStreamEntry[testEvent](context.Background(), nil, fb, cSkip, "orders", "workers", msg("1-0", "x"), NewDelivery))

	cFail := &scriptedConsumer{concurrency: 1, outcome: func(string) reactorerr.TaskOutcome { return reactorerr.Fail(errors.New("boom")) }}
	require.NoError(t, ProcessStreamEntry[testEvent](context.Background(), nil, fb, cFail, "orders", "workers", msg("2-0", "x"), NewDelivery))

	assert.Empty(t, fb.acked)
	assert.Empty(t, fb.deleted)
}

func TestProcessStreamEntry_UndecodableEntryIsLeftPending(t *testing.T) {
	fb := &fakeBroker{}
	c := &scriptedConsumer{concurrency: 1, outcome: func(string) reactorerr.TaskOutcome { return reactorerr.Ack() }}

	bad := broker.Message{ID: "1-0", Values: map[string][]byte{"op": {0xff, 0xfe}}}
	err := ProcessStreamEntry[testEvent](context.Background(), nil, fb, c, "orders", "workers", bad, NewDelivery)
	require.NoError(t, err)
	assert.Empty(t, fb.acked)
	assert.Zero(t, c.seen)
}

func TestProcessEventStream_DispatchesEveryEntry(t *testing.T) {
	fb := &fakeBroker{}
	c := &scriptedConsumer{concurrency: 2, outcome: func(string) reactorerr.TaskOutcome { return reactorerr.Ack() }}

	msgs := []broker.Message{msg("1-0", "x"), msg("2-0", "x"), msg("3-0", "x")}
	err := ProcessEventStream[testEvent](context.Background(), nil, fb, c, "orders", "workers", msgs, NewDelivery)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1-0", "2-0", "3-0"}, fb.acked)
	assert.EqualValues(t, 3, c.seen)
}

func TestProcessEventStream_ReturnsFirstBrokerError(t *testing.T) {
	fb := &fakeBroker{ackErr: errors.New("ack failed")}
	c := &scriptedConsumer{concurrency: 2, outcome: func(string) reactorerr.TaskOutcome { return reactorerr.Ack() }}

	msgs := []broker.Message{msg("1-0", "x"), msg("2-0", "x")}
	err := ProcessEventStream[testEvent](context.Background(), nil, fb, c, "orders", "workers", msgs, NewDelivery)
	require.Error(t, err)
}

func TestProcessEventStream_EmptyBatchIsNoop(t *testing.T) {
	fb := &fakeBroker{}
	c := &scriptedConsumer{concurrency: 1, outcome: func(string) reactorerr.TaskOutcome { return reactorerr.Ack() }}

	err := ProcessEventStream[testEvent](context.Background(), nil, fb, c, "orders", "workers", nil, NewDelivery)
	require.NoError(t, err)
	assert.Zero(t, c.seen)
}
