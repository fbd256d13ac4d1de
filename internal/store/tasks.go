package store

import (
	"database/sql"
	"time"

	"github.com/basket/pixivbot-go/internal/errs"
	"github.com/basket/pixivbot-go/internal/model"
)

func scanTask(row interface {
	Scan(dest ...any) error
}) (*model.Task, error) {
	var t model.Task
	var nextPollAt int64
	var lastPolledAt sql.NullInt64
	var latestData string
	if err := row.Scan(&t.ID, &t.Kind, &t.Value, &t.IntervalSec, &nextPollAt, &lastPolledAt,
		&latestData, &t.CreatedBy, &t.UpdatedBy); err != nil {
		return nil, err
	}
	t.NextPollAt = time.Unix(nextPollAt, 0).UTC()
	if lastPolledAt.Valid {
		lp := time.Unix(lastPolledAt.Int64, 0).UTC()
		t.LastPolledAt = &lp
	}
	t.LatestData = unmarshalMap(latestData)
	return &t, nil
}

const taskColumns = `id, kind, value, interval_sec, next_poll_at, last_polled_at, latest_data, created_by, updated_by`

// UpsertTaskByKindValue returns the existing (kind, value) task, or atomically
// creates one due immediately with intervalSec, attributing it to userID.
// Concurrent callers racing on a fresh (kind, value) pair both succeed: the
// INSERT's UNIQUE constraint is resolved with a no-op DO UPDATE, then both
// re-SELECT and observe whichever row actually landed.
func (s *Store) UpsertTaskByKindValue(kind model.TaskKind, value string, intervalSec int, userID int64) (*model.Task, error) {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO tasks (kind, value, interval_sec, next_poll_at, latest_data, created_by, updated_by)
		VALUES (?, ?, ?, ?, '{}', ?, ?)
		ON CONFLICT(kind, value) DO UPDATE SET updated_by = excluded.updated_by
	`, kind, value, intervalSec, now, userID, userID)
	if err != nil {
		return nil, errs.Wrap(errs.Db, err, "upsert task", "could not record task")
	}
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE kind = ? AND value = ?`, kind, value)
	t, err := scanTask(row)
	if err != nil {
		return nil, errs.Wrap(errs.Db, err, "reload upserted task", "could not record task")
	}
	return t, nil
}

// GetTaskByKindValue fetches a task by (kind, value), returning (nil, nil)
// if unknown, for callers (like /unsub) that must not create a task as a
// side effect of a lookup.
func (s *Store) GetTaskByKindValue(kind model.TaskKind, value string) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE kind = ? AND value = ?`, kind, value)
	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.Db, err, "get task by kind/value", "could not load task")
	}
	return t, nil
}

// GetTask fetches a task by id, returning (nil, nil) if unknown.
func (s *Store) GetTask(id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.Db, err, "get task", "could not load task")
	}
	return t, nil
}

// SetNextPollAt reschedules a task, called after a poll with the jittered
// interval the scheduler picked for that tick.
func (s *Store) SetNextPollAt(id int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE tasks SET next_poll_at = ?, last_polled_at = ? WHERE id = ?`,
		at.Unix(), time.Now().Unix(), id)
	if err != nil {
		return errs.Wrap(errs.Db, err, "set next poll at", "could not reschedule task")
	}
	return nil
}

// SetLatestData persists the watermark (latest_illust_id or date) recorded
// after a successful poll.
func (s *Store) SetLatestData(id int64, data map[string]any) error {
	_, err := s.db.Exec(`UPDATE tasks SET latest_data = ? WHERE id = ?`, marshalMap(data), id)
	if err != nil {
		return errs.Wrap(errs.Db, err, "set latest data", "could not update task watermark")
	}
	return nil
}

// ClaimDueTask finds the task with the smallest next_poll_at <= now (if any)
// and tentatively reschedules it by its own interval_sec, so a second tick
// arriving before the poll completes does not also pick it up. The scheduler
// overwrites that tentative value with SetNextPollAt once the real,
// jittered interval for this tick is known. Returns (nil, nil) if nothing is due.
func (s *Store) ClaimDueTask(now time.Time) (*model.Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errs.Wrap(errs.Db, err, "begin claim", "could not poll for work")
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE next_poll_at <= ? ORDER BY next_poll_at ASC LIMIT 1`, now.Unix())
	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.Db, err, "claim due task", "could not poll for work")
	}

	tentative := now.Add(time.Duration(t.IntervalSec) * time.Second)
	if _, err := tx.Exec(`UPDATE tasks SET next_poll_at = ? WHERE id = ?`, tentative.Unix(), t.ID); err != nil {
		return nil, errs.Wrap(errs.Db, err, "tentatively reschedule task", "could not poll for work")
	}
	if err := tx.Commit(); err != nil {
		return nil, errs.Wrap(errs.Db, err, "commit claim", "could not poll for work")
	}
	return t, nil
}

// ListTasksByKind lists every task of the given kind, for the
// NameUpdateEngine's periodic author display-name refresh sweep.
func (s *Store) ListTasksByKind(kind model.TaskKind) ([]model.Task, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks WHERE kind = ?`, kind)
	if err != nil {
		return nil, errs.Wrap(errs.Db, err, "list tasks by kind", "could not load tasks")
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errs.Wrap(errs.Db, err, "scan task", "could not load tasks")
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Db, err, "iterate tasks", "could not load tasks")
	}
	return out, nil
}

// ActiveSubscriptionsFor lists every subscription attached to taskID, for
// fan-out delivery after a successful poll.
func (s *Store) ActiveSubscriptionsFor(taskID int64) ([]model.Subscription, error) {
	rows, err := s.db.Query(`SELECT `+subColumns+` FROM subscriptions WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, errs.Wrap(errs.Db, err, "list subscriptions for task", "could not load subscribers")
	}
	defer rows.Close()

	var out []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, errs.Wrap(errs.Db, err, "scan subscription", "could not load subscribers")
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Db, err, "iterate subscriptions", "could not load subscribers")
	}
	return out, nil
}
