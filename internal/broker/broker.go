// Package broker defines the narrow stream-broker contract the reactor
// needs (group bootstrap, group read, autoclaim, ack, delete) and a
// github.com/redis/go-redis/v9-backed implementation of it. Depending on
// an interface instead of *redis.Client lets tests substitute miniredis or
// a hand-written fake.
package broker

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/redisreactor/reactor/internal/reactorerr"
)

// Message is one stream entry as read off the wire: a broker-assigned id
// plus its flat field map, values already normalized to bytes.
type Message struct {
	ID     string
	Values map[string][]byte
}

// Broker is the set of stream operations the reactor depends on. See
// spec.md §6 for the wire contract each method must honor.
type Broker interface {
	// CreateGroup creates group on stream starting at id "0", creating
	// the stream if it doesn't exist. Returns a *reactorerr.BrokerError
	// whose Err wraps the original error; callers distinguish BUSYGROUP
	// with IsBusyGroup.
	CreateGroup(ctx context.Context, stream, group string) error

	// ReadGroup blocks for up to block waiting for newly delivered
	// entries (id ">") for consumer in group. A nil, nil return means no
	// entries arrived before the block timeout elapsed.
	ReadGroup(ctx context.Context, stream, group, consumer string, block time.Duration, count int64) ([]Message, error)

	// AutoClaim transfers ownership of entries idle at least minIdle from
	// cursor, returning up to count entries and the next cursor.
	AutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, cursor string, count int64) (messages []Message, next string, err error)

	// Ack acknowledges one id in group.
	Ack(ctx context.Context, stream, group, id string) error

	// Delete removes one id from stream.
	Delete(ctx context.Context, stream, id string) error
}

// IsBusyGroup reports whether err is the broker's expected "group already
// exists" response to CreateGroup.
func IsBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// RedisBroker implements Broker against github.com/redis/go-redis/v9.
type RedisBroker struct {
	client redis.UniversalClient
}

// New wraps an existing go-redis client.
func New(client redis.UniversalClient) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) CreateGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err == nil {
		return nil
	}
	if IsBusyGroup(err) {
		return reactorerr.NewBrokerError("XGROUP CREATE", err, false)
	}
	return reactorerr.NewBrokerError("XGROUP CREATE", err, isTransient(err))
}

func (b *RedisBroker) ReadGroup(ctx context.Context, stream, group, consumer string, block time.Duration, count int64) ([]Message, error) {
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, reactorerr.NewBrokerError("XREADGROUP", err, isTransient(err))
	}
	var out []Message
	for _, stream := range res {
		for _, m := range stream.Messages {
			out = append(out, toMessage(m))
		}
	}
	return out, nil
}

func (b *RedisBroker) AutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, cursor string, count int64) ([]Message, string, error) {
	xmsgs, next, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    cursor,
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "0-0", nil
		}
		return nil, cursor, reactorerr.NewBrokerError("XAUTOCLAIM", err, isTransient(err))
	}
	out := make([]Message, 0, len(xmsgs))
	for _, m := range xmsgs {
		out = append(out, toMessage(m))
	}
	return out, next, nil
}

func (b *RedisBroker) Ack(ctx context.Context, stream, group, id string) error {
	if err := b.client.XAck(ctx, stream, group, id).Err(); err != nil {
		return reactorerr.NewBrokerError("XACK", err, isTransient(err))
	}
	return nil
}

func (b *RedisBroker) Delete(ctx context.Context, stream, id string) error {
	if err := b.client.XDel(ctx, stream, id).Err(); err != nil {
		return reactorerr.NewBrokerError("XDEL", err, isTransient(err))
	}
	return nil
}

func toMessage(m redis.XMessage) Message {
	values := make(map[string][]byte, len(m.Values))
	for k, v := range m.Values {
		switch s := v.(type) {
		case string:
			values[k] = []byte(s)
		default:
			values[k] = []byte(toString(s))
		}
	}
	return Message{ID: m.ID, Values: values}
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return ""
}

// isTransient classifies connection-level failures (timeouts, refused/
// reset connections, unexpected EOF) as retryable; anything else -
// including a non-BUSYGROUP protocol error - is treated as fatal.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	for _, needle := range []string{"connection refused", "connection reset", "broken pipe", "i/o timeout", "EOF", "use of closed network connection"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
