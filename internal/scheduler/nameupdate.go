package scheduler

import (
	"context"
	"log/slog"
	"strconv"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/pixivbot-go/internal/model"
)

// TaskLister is the narrow store surface NameUpdateEngine needs.
type TaskLister interface {
	ListTasksByKind(kind model.TaskKind) ([]model.Task, error)
	SetLatestData(id int64, data map[string]any) error
}

// NameUpdateEngine periodically refreshes the cached display name of every
// author under active polling, at a much lower rate than the poll loop
// itself. Grounded on the teacher's cron.Scheduler, but reusing
// robfig/cron/v3's own Cron type directly rather than reimplementing a
// ticker, since this job's cadence is a plain cron spec ("@every 6h") with
// no per-task due-time bookkeeping.
type NameUpdateEngine struct {
	store  TaskLister
	source Source
	logger *slog.Logger

	cron *cronlib.Cron
}

// NewNameUpdateEngine builds a NameUpdateEngine.
func NewNameUpdateEngine(store TaskLister, source Source, logger *slog.Logger) *NameUpdateEngine {
	return &NameUpdateEngine{store: store, source: source, logger: logger}
}

// Start schedules the refresh sweep under spec (e.g. "@every 6h") and begins
// running it in the background.
func (e *NameUpdateEngine) Start(ctx context.Context, spec string) error {
	e.cron = cronlib.New()
	if _, err := e.cron.AddFunc(spec, func() { e.sweep(ctx) }); err != nil {
		return err
	}
	e.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight sweep.
func (e *NameUpdateEngine) Stop() {
	if e.cron != nil {
		<-e.cron.Stop().Done()
	}
}

func (e *NameUpdateEngine) sweep(ctx context.Context) {
	tasks, err := e.store.ListTasksByKind(model.TaskAuthor)
	if err != nil {
		e.logger.Error("name update: failed to list author tasks", "error", err)
		return
	}

	for _, t := range tasks {
		authorID, err := strconv.ParseInt(t.Value, 10, 64)
		if err != nil {
			continue
		}
		profile, err := e.source.UserDetail(ctx, authorID)
		if err != nil {
			e.logger.Warn("name update: failed to refresh author", "author_id", authorID, "error", err)
			continue
		}

		data := make(map[string]any, len(t.LatestData)+1)
		for k, v := range t.LatestData {
			data[k] = v
		}
		data["display_name"] = profile.Name

		if err := e.store.SetLatestData(t.ID, data); err != nil {
			e.logger.Error("name update: failed to persist display name", "task_id", t.ID, "error", err)
		}
	}
}
