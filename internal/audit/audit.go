// Package audit records access-control decisions (command accepted/denied)
// so an Owner can see why a command was refused without combing the main
// log stream. See spec.md §4.8 and §7.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basket/pixivbot-go/internal/shared"
)

type entry struct {
	Timestamp string `json:"timestamp"`
	Decision  string `json:"decision"` // "allow" or "deny"
	Action    string `json:"action"`   // command name, e.g. "/setadmin"
	Reason    string `json:"reason"`
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id,omitempty"`
}

var (
	mu        sync.Mutex
	file      *os.File
	db        *sql.DB
	denyCount atomic.Int64
)

// Init opens <logDir>/audit.jsonl for appending. Safe to call more than once.
func Init(logDir string) error {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		return nil
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	file = f
	return nil
}

// SetDB configures the database used for audit_log table writes.
func SetDB(d *sql.DB) {
	mu.Lock()
	defer mu.Unlock()
	db = d
}

// Close releases the JSONL file handle.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// DenyCount returns the total number of deny decisions recorded since startup.
func DenyCount() int64 {
	return denyCount.Load()
}

// Record logs one access-control decision.
func Record(decision, action, reason string, chatID, userID int64) {
	if decision == "deny" {
		denyCount.Add(1)
	}

	reason = shared.Redact(reason)

	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		ev := entry{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Decision:  decision,
			Action:    action,
			Reason:    reason,
			ChatID:    chatID,
			UserID:    userID,
		}
		if b, err := json.Marshal(ev); err == nil {
			_, _ = file.Write(append(b, '\n'))
		}
	}

	if db != nil {
		_, _ = db.ExecContext(context.Background(), `
			INSERT INTO audit_log (chat_id, user_id, action, decision, reason)
			VALUES (?, ?, ?, ?, ?);
		`, chatID, userID, action, decision, reason)
	}
}
