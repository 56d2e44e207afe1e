package jobentry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/redisreactor/reactor/internal/consumer"
	"github.com/redisreactor/reactor/internal/reactorerr"
)

// DemoConsumer logs each job request it receives and acknowledges it. It
// exists to exercise the reactor end to end, not as a reference handler
// implementation.
type DemoConsumer struct {
	Logger        *zap.Logger
	BlockTime     time.Duration
	Batch         int64
	MaxConcurrent int
}

var _ consumer.Consumer[Request] = (*DemoConsumer)(nil)

func (c *DemoConsumer) XReadBlockTime() time.Duration { return c.BlockTime }
func (c *DemoConsumer) BatchSize() int64              { return c.Batch }
func (c *DemoConsumer) Concurrency() int              { return c.MaxConcurrent }

func (c *DemoConsumer) ProcessEvent(ctx context.Context, id string, event Request, status consumer.DeliveryStatus) reactorerr.TaskOutcome {
	switch event.Op {
	case OpCreateLorem:
		c.Logger.Info("create lorem", zap.String("id", id), zap.String("status", status.String()),
			zap.String("type", event.LoremType), zap.Int("count", event.LoremCount))
	case OpCreatePost:
		c.Logger.Info("create post", zap.String("id", id), zap.String("status", status.String()),
			zap.Int("post_id", event.PostID), zap.String("author", event.Author.Name))
	case OpSetWinRate:
		c.Logger.Info("set win rate", zap.String("id", id), zap.String("status", status.String()),
			zap.Float64("rate", event.Rate))
	default:
		c.Logger.Warn("unrecognized job op", zap.String("id", id), zap.String("op", event.Op))
		return reactorerr.Delete()
	}
	return reactorerr.Ack()
}
