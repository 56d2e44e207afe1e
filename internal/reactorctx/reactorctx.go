// Package reactorctx holds a reactor's immutable identity (stream key,
// group name, consumer id) and the shared cancellation signal used to
// drive cooperative shutdown.
package reactorctx

import (
	"context"
	"crypto/rand"
	"sync"
)

const (
	consumerIDLength = 30
	alphanumeric     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// RunContext is a reactor's per-run identity, created once by the
// application and handed to the reactor. It is safe for concurrent use:
// the three identifiers are immutable after construction and the
// cancellation token is a many-readers, one-shot flag.
type RunContext struct {
	streamKey  string
	groupName  string
	consumerID string

	cancelOnce sync.Once
	cancel     context.CancelFunc
	done       context.Context
}

// New builds a RunContext for streamKey/groupName. If consumerID is empty
// a 30-character random alphanumeric id is generated.
func New(streamKey, groupName, consumerID string) (*RunContext, error) {
	if consumerID == "" {
		id, err := randomConsumerID()
		if err != nil {
			return nil, err
		}
		consumerID = id
	}
	done, cancel := context.WithCancel(context.Background())
	return &RunContext{
		streamKey:  streamKey,
		groupName:  groupName,
		consumerID: consumerID,
		cancel:     cancel,
		done:       done,
	}, nil
}

// StreamKey returns the stream's key.
func (r *RunContext) StreamKey() string { return r.streamKey }

// GroupName returns the consumer group's name.
func (r *RunContext) GroupName() string { return r.groupName }

// ConsumerID returns this reactor's consumer identity within the group.
func (r *RunContext) ConsumerID() string { return r.consumerID }

// ShutdownGracefully raises the cancellation token. Idempotent: calling it
// more than once, concurrently or not, has no additional effect.
func (r *RunContext) ShutdownGracefully() {
	r.cancelOnce.Do(r.cancel)
}

// Done returns a context that is cancelled once ShutdownGracefully has
// been called. Every reactor broker call and idle sleep is raced against
// it so shutdown is prompt.
func (r *RunContext) Done() context.Context { return r.done }

// ShutdownToken returns a context.Context usable as a standalone
// cancellation signal; cancelling the returned context has no effect on
// the RunContext (only ShutdownGracefully does) — it exists so callers can
// observe shutdown without holding a reference to the RunContext itself.
func (r *RunContext) ShutdownToken() context.Context { return r.done }

func randomConsumerID() (string, error) {
	buf := make([]byte, consumerIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, consumerIDLength)
	for i, b := range buf {
		out[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(out), nil
}
