package telemetry

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/basket/pixivbot-go/internal/bus"
)

// Counters is a small in-process tally of pipeline events, fed by the event
// bus. It exists so the scheduler and delivery packages stay decoupled from
// any particular metrics sink — they only ever call bus.Publish.
type Counters struct {
	TasksPolled      atomic.Int64
	WorksDelivered   atomic.Int64
	DeliveryFailures atomic.Int64
	CacheSweeps      atomic.Int64
	CacheEvicted     atomic.Int64
}

// Watch subscribes to b and updates c until ctx is cancelled, logging each
// event at debug level along the way.
func (c *Counters) Watch(ctx context.Context, b *bus.Bus, logger *slog.Logger) {
	sub := b.Subscribe("")
	go func() {
		defer b.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Ch():
				if !ok {
					return
				}
				c.handle(ev, logger)
			}
		}
	}()
}

func (c *Counters) handle(ev bus.Event, logger *slog.Logger) {
	switch ev.Topic {
	case bus.TopicTaskPolled:
		c.TasksPolled.Add(1)
		if p, ok := ev.Payload.(bus.TaskPolledEvent); ok {
			logger.Debug("task polled", "task_id", p.TaskID, "kind", p.Kind, "new_works", p.NewWorks, "ms", p.DurationMS, "err", p.Err)
		}
	case bus.TopicDeliveryResult:
		if p, ok := ev.Payload.(bus.DeliveryOutcomeEvent); ok {
			if p.Outcome == "success" || p.Outcome == "abandoned" {
				c.WorksDelivered.Add(1)
			} else {
				c.DeliveryFailures.Add(1)
			}
			logger.Debug("delivery outcome", "subscription_id", p.SubscriptionID, "illust_id", p.IllustID, "outcome", p.Outcome, "retry_count", p.RetryCount)
		}
	case bus.TopicCacheSwept:
		c.CacheSweeps.Add(1)
		if p, ok := ev.Payload.(bus.CacheSweptEvent); ok {
			c.CacheEvicted.Add(int64(p.Removed))
			logger.Info("cache sweep complete", "removed", p.Removed, "scanned", p.Scanned, "errors", p.Errors, "ms", p.Duration)
		}
	}
}
