package store

import (
	"database/sql"
	"time"

	"github.com/basket/pixivbot-go/internal/errs"
	"github.com/basket/pixivbot-go/internal/model"
)

// UpsertChat records a chat on first contact, refreshing kind/title on every
// later one. Enabled is left untouched after the first insert — a chat
// starts disabled in public/private gating and only /enablechat flips it.
func (s *Store) UpsertChat(id int64, kind model.ChatKind, title string) error {
	_, err := s.db.Exec(`
		INSERT INTO chats (id, kind, title, enabled, created_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET kind = excluded.kind, title = excluded.title
	`, id, kind, title, time.Now().Unix())
	if err != nil {
		return errs.Wrap(errs.Db, err, "upsert chat", "could not record chat")
	}
	return nil
}

// SetChatEnabled flips a chat's gating flag.
func (s *Store) SetChatEnabled(id int64, enabled bool) error {
	res, err := s.db.Exec(`UPDATE chats SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return errs.Wrap(errs.Db, err, "set chat enabled", "could not update chat")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Db, err, "set chat enabled rows affected", "could not update chat")
	}
	if n == 0 {
		return errs.New(errs.ParseInput, errNotFound("chat", id), "unknown chat")
	}
	return nil
}

// GetChat fetches a chat by id, returning (nil, nil) if unknown.
func (s *Store) GetChat(id int64) (*model.Chat, error) {
	row := s.db.QueryRow(`SELECT id, kind, title, enabled, created_at FROM chats WHERE id = ?`, id)
	var c model.Chat
	var createdAt int64
	if err := row.Scan(&c.ID, &c.Kind, &c.Title, &c.Enabled, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.Db, err, "get chat", "could not load chat")
	}
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &c, nil
}

// GetChatSettings fetches a chat's delivery preferences, seeding a default
// row (blur on, no extra tags) if none exists yet.
func (s *Store) GetChatSettings(chatID int64) (*model.ChatSettings, error) {
	row := s.db.QueryRow(`
		SELECT chat_id, blur_sensitive, sensitive_tags, excluded_tags
		FROM chat_settings WHERE chat_id = ?
	`, chatID)
	var cs model.ChatSettings
	var sensitive, excluded string
	if err := row.Scan(&cs.ChatID, &cs.BlurSensitive, &sensitive, &excluded); err != nil {
		if err == sql.ErrNoRows {
			return &model.ChatSettings{ChatID: chatID, BlurSensitive: true}, nil
		}
		return nil, errs.Wrap(errs.Db, err, "get chat settings", "could not load settings")
	}
	cs.SensitiveTags = unmarshalStrings(sensitive)
	cs.ExcludedTags = unmarshalStrings(excluded)
	return &cs, nil
}

// SetChatSettings upserts a chat's full delivery preference row.
func (s *Store) SetChatSettings(cs model.ChatSettings) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_settings (chat_id, blur_sensitive, sensitive_tags, excluded_tags)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			blur_sensitive = excluded.blur_sensitive,
			sensitive_tags = excluded.sensitive_tags,
			excluded_tags = excluded.excluded_tags
	`, cs.ChatID, cs.BlurSensitive, marshalStrings(cs.SensitiveTags), marshalStrings(cs.ExcludedTags))
	if err != nil {
		return errs.Wrap(errs.Db, err, "set chat settings", "could not save settings")
	}
	return nil
}
