package delivery

import (
	"context"
	"log/slog"

	"github.com/basket/pixivbot-go/internal/bus"
	"github.com/basket/pixivbot-go/internal/errs"
	"github.com/basket/pixivbot-go/internal/model"
)

// Repo is the subset of store.Store the FSM's caller needs, kept narrow so
// tests can supply a fake.
type Repo interface {
	GetChatSettings(chatID int64) (*model.ChatSettings, error)
	SetPending(subID int64, pending model.PendingDelivery) error
	ClearPending(subID int64) error
}

// Run executes Process for (sub, work) and persists the resulting pending
// state through repo, publishing a delivery.outcome event either way.
func Run(ctx context.Context, repo Repo, sub model.Subscription, work model.Work, deps Deps, logger *slog.Logger, b *bus.Bus) (Result, error) {
	settings, err := repo.GetChatSettings(sub.ChatID)
	if err != nil {
		return Result{}, errs.Wrap(errs.Db, err, "load chat settings for delivery", "could not deliver")
	}

	result := Process(ctx, sub, work, *settings, deps)

	if result.Pending != nil {
		if err := repo.SetPending(sub.ID, *result.Pending); err != nil {
			return result, errs.Wrap(errs.Db, err, "persist pending delivery", "could not record delivery state")
		}
	} else {
		if err := repo.ClearPending(sub.ID); err != nil {
			return result, errs.Wrap(errs.Db, err, "clear pending delivery", "could not record delivery state")
		}
	}

	logger.Info("delivery processed", "subscription_id", sub.ID, "chat_id", sub.ChatID,
		"illust_id", work.ID, "outcome", result.Outcome)

	if b != nil {
		retryCount := 0
		if result.Pending != nil {
			retryCount = result.Pending.RetryCount
		}
		b.Publish(bus.TopicDeliveryResult, bus.DeliveryOutcomeEvent{
			SubscriptionID: sub.ID,
			ChatID:         sub.ChatID,
			IllustID:       work.ID,
			Outcome:        string(result.Outcome),
			RetryCount:     retryCount,
		})
	}

	return result, nil
}
