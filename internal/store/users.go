package store

import (
	"database/sql"
	"time"

	"github.com/basket/pixivbot-go/internal/errs"
	"github.com/basket/pixivbot-go/internal/model"
)

// UpsertUser records a user on first contact and refreshes its username on
// every later one; it never touches Role once the row exists.
func (s *Store) UpsertUser(id int64, username string) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, username, role, created_at)
		VALUES (?, ?, 'user', ?)
		ON CONFLICT(id) DO UPDATE SET username = excluded.username
	`, id, username, time.Now().Unix())
	if err != nil {
		return errs.Wrap(errs.Db, err, "upsert user", "could not record user")
	}
	return nil
}

// GetUser fetches a user by id, returning (nil, nil) if unknown.
func (s *Store) GetUser(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT id, username, role, created_at FROM users WHERE id = ?`, id)
	var u model.User
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Username, &u.Role, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errs.Wrap(errs.Db, err, "get user", "could not load user")
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// SetUserRole updates a user's privilege level. The row must already exist
// (callers upsert on message receipt before any role is ever set).
func (s *Store) SetUserRole(id int64, role model.Role) error {
	res, err := s.db.Exec(`UPDATE users SET role = ? WHERE id = ?`, role, id)
	if err != nil {
		return errs.Wrap(errs.Db, err, "set user role", "could not update role")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Db, err, "set user role rows affected", "could not update role")
	}
	if n == 0 {
		return errs.New(errs.ParseInput, errNotFound("user", id), "unknown user")
	}
	return nil
}
