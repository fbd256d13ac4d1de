// Package scheduler is the Scheduler (spec.md §4.6): a single tick loop that
// dispatches at most one due task at a time under a randomized inter-request
// pacing budget. Grounded on the teacher's cron.Scheduler shape
// (Start/Stop/loop(ctx)/tick(ctx), ticker + sync.WaitGroup + CancelFunc),
// generalized from "fire all due cron schedules" to "dispatch exactly one
// due task per tick, jittered".
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/basket/pixivbot-go/internal/bus"
	"github.com/basket/pixivbot-go/internal/delivery"
	"github.com/basket/pixivbot-go/internal/model"
)

// Store is the narrow persistence surface the scheduler and its engines need.
type Store interface {
	delivery.Repo
	ClaimDueTask(now time.Time) (*model.Task, error)
	SetNextPollAt(id int64, at time.Time) error
	SetLatestData(id int64, data map[string]any) error
	ActiveSubscriptionsFor(taskID int64) ([]model.Subscription, error)
}

// Source is the narrow sourceclient.Client surface the engines need.
type Source interface {
	ListAuthorWorks(ctx context.Context, authorID int64, offset int) ([]model.Work, error)
	Ranking(ctx context.Context, mode model.RankingMode, date string) (model.RankingPage, error)
	UserDetail(ctx context.Context, userID int64) (model.UserProfile, error)
}

// Config configures a Scheduler.
type Config struct {
	Store  Store
	Source Source
	Deps   delivery.Deps
	Logger *slog.Logger
	Bus    *bus.Bus

	TickInterval       time.Duration
	MinTaskInterval    time.Duration
	MaxTaskInterval    time.Duration
	MinRequestInterval time.Duration
	MaxRequestInterval time.Duration
	RankingTopN        int
}

// Scheduler drives the single execution slot that polls every Task.
type Scheduler struct {
	cfg Config

	authorEngine  *AuthorEngine
	rankingEngine *RankingEngine

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Scheduler from cfg.
func New(cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	return &Scheduler{
		cfg:           cfg,
		authorEngine:  &AuthorEngine{store: cfg.Store, source: cfg.Source, deps: cfg.Deps, logger: cfg.Logger, bus: cfg.Bus},
		rankingEngine: &RankingEngine{store: cfg.Store, source: cfg.Source, deps: cfg.Deps, logger: cfg.Logger, bus: cfg.Bus, topN: cfg.RankingTopN},
	}
}

// Start begins the tick loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.cfg.Logger.Info("scheduler started", "tick_interval", s.cfg.TickInterval)
}

// Stop cancels the tick loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.cfg.Logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		executed := s.tick(ctx)
		if !executed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.TickInterval):
			}
			continue
		}
		// Pace the next outgoing request regardless of what this tick did.
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter(s.cfg.MinRequestInterval, s.cfg.MaxRequestInterval)):
		}
	}
}

// tick fetches at most one due task and executes it, returning whether a
// task was found (as opposed to the idle-sleep path).
func (s *Scheduler) tick(ctx context.Context) bool {
	now := time.Now()
	task, err := s.cfg.Store.ClaimDueTask(now)
	if err != nil {
		s.cfg.Logger.Error("scheduler: failed to claim due task", "error", err)
		return false
	}
	if task == nil {
		return false
	}

	// The real, jittered next_poll_at is persisted before execution begins
	// (spec.md §4.6): a crash mid-task skips one interval, it never spins.
	next := now.Add(jitter(s.cfg.MinTaskInterval, s.cfg.MaxTaskInterval))
	if err := s.cfg.Store.SetNextPollAt(task.ID, next); err != nil {
		s.cfg.Logger.Error("scheduler: failed to reschedule task", "task_id", task.ID, "error", err)
	}

	start := time.Now()
	var execErr error
	switch task.Kind {
	case model.TaskAuthor:
		execErr = s.authorEngine.Execute(ctx, *task)
	case model.TaskRanking:
		execErr = s.rankingEngine.Execute(ctx, *task)
	default:
		s.cfg.Logger.Warn("scheduler: unknown task kind", "task_id", task.ID, "kind", task.Kind)
	}

	errMsg := ""
	if execErr != nil {
		errMsg = execErr.Error()
		s.cfg.Logger.Error("scheduler: task execution failed", "task_id", task.ID, "kind", task.Kind, "error", execErr)
	}
	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(bus.TopicTaskPolled, bus.TaskPolledEvent{
			TaskID:     task.ID,
			Kind:       string(task.Kind),
			DurationMS: time.Since(start).Milliseconds(),
			Err:        errMsg,
		})
	}
	return true
}

// jitter returns a random duration in [min, max]. If max <= min, min is
// returned unjittered.
func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
