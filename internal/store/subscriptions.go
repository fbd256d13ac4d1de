package store

import (
	"database/sql"
	"time"

	"github.com/basket/pixivbot-go/internal/errs"
	"github.com/basket/pixivbot-go/internal/model"
)

const subColumns = `id, chat_id, task_id, filter_include, filter_exclude, pending_json, created_at`

func scanSubscription(row interface {
	Scan(dest ...any) error
}) (*model.Subscription, error) {
	var sub model.Subscription
	var include, exclude string
	var pendingJSON sql.NullString
	var createdAt int64
	if err := row.Scan(&sub.ID, &sub.ChatID, &sub.TaskID, &include, &exclude, &pendingJSON, &createdAt); err != nil {
		return nil, err
	}
	sub.Filter = model.TagFilter{Include: unmarshalStrings(include), Exclude: unmarshalStrings(exclude)}
	sub.CreatedAt = time.Unix(createdAt, 0).UTC()
	if pendingJSON.Valid {
		sub.Pending = unmarshalPending(pendingJSON.String)
	}
	return &sub, nil
}

// UpsertSubscription attaches chatID to taskID, merging filter into any
// existing row's filter (TagFilter.Merge is associative/commutative — a
// repeated /sub only ever widens the filter, never resets it).
func (s *Store) UpsertSubscription(chatID, taskID int64, filter model.TagFilter) (*model.Subscription, error) {
	existing, err := s.subscriptionFor(chatID, taskID)
	if err != nil {
		return nil, err
	}

	merged := filter
	if existing != nil {
		merged = existing.Filter.Merge(filter)
	}

	_, err = s.db.Exec(`
		INSERT INTO subscriptions (chat_id, task_id, filter_include, filter_exclude, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, task_id) DO UPDATE SET
			filter_include = excluded.filter_include,
			filter_exclude = excluded.filter_exclude
	`, chatID, taskID, marshalStrings(merged.Include), marshalStrings(merged.Exclude), time.Now().Unix())
	if err != nil {
		return nil, errs.Wrap(errs.Db, err, "upsert subscription", "could not save subscription")
	}
	return s.subscriptionFor(chatID, taskID)
}

func (s *Store) subscriptionFor(chatID, taskID int64) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subColumns+` FROM subscriptions WHERE chat_id = ? AND task_id = ?`, chatID, taskID)
	sub, err := scanSubscription(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.Db, err, "get subscription", "could not load subscription")
	}
	return sub, nil
}

// DeleteSubscription removes chatID's subscription to taskID, idempotently.
func (s *Store) DeleteSubscription(chatID, taskID int64) error {
	_, err := s.db.Exec(`DELETE FROM subscriptions WHERE chat_id = ? AND task_id = ?`, chatID, taskID)
	if err != nil {
		return errs.Wrap(errs.Db, err, "delete subscription", "could not remove subscription")
	}
	return nil
}

// ListSubscriptionsForChat returns every subscription a chat holds, for /list.
func (s *Store) ListSubscriptionsForChat(chatID int64) ([]model.Subscription, error) {
	rows, err := s.db.Query(`SELECT `+subColumns+` FROM subscriptions WHERE chat_id = ? ORDER BY id ASC`, chatID)
	if err != nil {
		return nil, errs.Wrap(errs.Db, err, "list subscriptions for chat", "could not load subscriptions")
	}
	defer rows.Close()

	var out []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, errs.Wrap(errs.Db, err, "scan subscription", "could not load subscriptions")
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Db, err, "iterate subscriptions", "could not load subscriptions")
	}
	return out, nil
}

// SetPending records (or replaces) a subscription's in-flight delivery resume
// state.
func (s *Store) SetPending(subID int64, pending model.PendingDelivery) error {
	_, err := s.db.Exec(`UPDATE subscriptions SET pending_json = ? WHERE id = ?`, marshalPending(pending), subID)
	if err != nil {
		return errs.Wrap(errs.Db, err, "set pending delivery", "could not save delivery state")
	}
	return nil
}

// ClearPending drops a subscription's in-flight delivery resume state, once
// a delivery reaches a terminal outcome.
func (s *Store) ClearPending(subID int64) error {
	_, err := s.db.Exec(`UPDATE subscriptions SET pending_json = NULL WHERE id = ?`, subID)
	if err != nil {
		return errs.Wrap(errs.Db, err, "clear pending delivery", "could not clear delivery state")
	}
	return nil
}
