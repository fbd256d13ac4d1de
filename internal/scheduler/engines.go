package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"strconv"

	"github.com/basket/pixivbot-go/internal/bus"
	"github.com/basket/pixivbot-go/internal/delivery"
	"github.com/basket/pixivbot-go/internal/errs"
	"github.com/basket/pixivbot-go/internal/model"
)

// AuthorEngine polls one author's work list, delivers every not-yet-seen
// work (oldest first) to every subscriber, and advances the task's
// latest_illust_id watermark only past works every subscriber reached a
// terminal, non-retryable state for (spec.md §4.6/§4.7).
type AuthorEngine struct {
	store  Store
	source Source
	deps   delivery.Deps
	logger *slog.Logger
	bus    *bus.Bus
}

// Execute polls and delivers for one author task.
func (e *AuthorEngine) Execute(ctx context.Context, task model.Task) error {
	authorID, err := strconv.ParseInt(task.Value, 10, 64)
	if err != nil {
		return errs.Wrap(errs.ParseInput, err, "parse author task value", "invalid author task")
	}

	works, err := e.source.ListAuthorWorks(ctx, authorID, 0)
	if err != nil {
		return err
	}

	if _, seen := task.LatestData["latest_illust_id"]; !seen {
		// First observation: seed the watermark from whatever is already
		// published, deliver nothing (spec.md testable property 10).
		var top int64
		for _, w := range works {
			if w.ID > top {
				top = w.ID
			}
		}
		return e.store.SetLatestData(task.ID, map[string]any{"latest_illust_id": top})
	}

	watermark := task.LatestIllustID()

	var fresh []model.Work
	for _, w := range works {
		if w.ID > watermark {
			fresh = append(fresh, w)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })

	subs, err := e.store.ActiveSubscriptionsFor(task.ID)
	if err != nil {
		return err
	}

	for _, w := range fresh {
		allTerminal := true
		for _, sub := range subs {
			result, err := delivery.Run(ctx, e.store, sub, w, e.deps, e.logger, e.bus)
			if err != nil {
				e.logger.Error("author engine: delivery failed", "task_id", task.ID, "illust_id", w.ID, "chat_id", sub.ChatID, "error", err)
				allTerminal = false
				continue
			}
			if !result.AdvanceWatermark {
				allTerminal = false
			}
		}
		if !allTerminal {
			// Hold the watermark here; later, newer works are not attempted
			// this tick so delivery order stays oldest-first.
			break
		}
		watermark = w.ID
	}

	if watermark == task.LatestIllustID() {
		return nil
	}
	return e.store.SetLatestData(task.ID, map[string]any{"latest_illust_id": watermark})
}

// RankingEngine polls one ranking mode's current page once per calendar day,
// pushing the configured top-N works to every subscriber, and advances the
// task's date watermark only once every subscriber reaches a terminal state
// for that date (SPEC_FULL §9.1, resolving spec.md's ranking-advance open
// question in favor of "hold the whole day" rather than per-work granularity,
// since a ranking page is delivered as one unit, not an incremental stream).
// "Day" is keyed off the ranking date the source reports, not the local
// clock — the two can disagree around a day boundary, since "latest
// available" may still be serving yesterday's page.
type RankingEngine struct {
	store  Store
	source Source
	deps   delivery.Deps
	logger *slog.Logger
	bus    *bus.Bus
	topN   int
}

// Execute polls and delivers for one ranking task.
func (e *RankingEngine) Execute(ctx context.Context, task model.Task) error {
	mode := model.RankingMode(task.Value)
	lastDate := task.LatestDate()

	page, err := e.source.Ranking(ctx, mode, "")
	if err != nil {
		return err
	}

	if lastDate == "" {
		// First observation: record the source's current ranking date,
		// deliver nothing.
		return e.store.SetLatestData(task.ID, map[string]any{"date": page.Date})
	}
	if lastDate == page.Date {
		return nil
	}

	works := page.Works
	topN := e.topN
	if topN <= 0 {
		topN = 10
	}
	if len(works) > topN {
		works = works[:topN]
	}

	subs, err := e.store.ActiveSubscriptionsFor(task.ID)
	if err != nil {
		return err
	}

	allTerminal := true
	for _, w := range works {
		for _, sub := range subs {
			result, err := delivery.Run(ctx, e.store, sub, w, e.deps, e.logger, e.bus)
			if err != nil {
				e.logger.Error("ranking engine: delivery failed", "task_id", task.ID, "illust_id", w.ID, "chat_id", sub.ChatID, "error", err)
				allTerminal = false
				continue
			}
			if !result.AdvanceWatermark {
				allTerminal = false
			}
		}
	}

	if !allTerminal {
		return nil
	}
	return e.store.SetLatestData(task.ID, map[string]any{"date": page.Date})
}
