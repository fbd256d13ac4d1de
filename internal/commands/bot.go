// Package commands is the CommandHandlers component (spec.md §4.8): the
// chat-platform update pump and the access-gated command dispatch table.
// Grounded on the teacher's internal/channels/telegram.go Start/pollUpdates
// reconnect-with-backoff/stall-timeout shape, generalized from
// agent-routing + HITL callbacks to a fixed command dispatch table.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/pixivbot-go/internal/access"
	"github.com/basket/pixivbot-go/internal/audit"
	"github.com/basket/pixivbot-go/internal/config"
	"github.com/basket/pixivbot-go/internal/delivery"
	"github.com/basket/pixivbot-go/internal/model"
)

// Config configures a Bot.
type Config struct {
	API        *tgbotapi.BotAPI
	Repo       Repo
	Source     Source
	Notifier   Notifier
	Downloader delivery.Downloads
	Logger     *slog.Logger

	OwnerID                int64
	BotMode                config.BotMode
	DefaultTaskIntervalSec int
	MaxRetryCount          int

	// Status renders the /info payload (Owner-only); nil means unconfigured.
	Status func() string
}

// Bot is the command pump: it owns the platform long-poll loop and the
// access-gated dispatch table.
type Bot struct {
	cfg Config
}

// New builds a Bot from cfg.
func New(cfg Config) *Bot {
	return &Bot{cfg: cfg}
}

// Start runs the update pump until ctx is cancelled, reconnecting with
// exponential backoff on poll failures.
func (b *Bot) Start(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := b.cfg.API.GetUpdatesChan(u)

		pollErr := b.pollUpdates(ctx, updates)
		b.cfg.API.StopReceivingUpdates()

		if pollErr == nil {
			return
		}

		b.cfg.Logger.Warn("command pump disconnected, reconnecting", "error", pollErr, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// pollUpdates reads from the update channel until ctx is done, the channel
// closes, or no update arrives within 2.5x the long-poll timeout (the
// library blocks on a dead connection rather than closing the channel).
func (b *Bot) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	const stallTimeout = 150 * time.Second

	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}

		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	cmd, args := splitCommand(text)

	if err := b.cfg.Repo.UpsertUser(msg.From.ID, msg.From.UserName); err != nil {
		b.cfg.Logger.Error("failed to upsert user", "user_id", msg.From.ID, "error", err)
	}
	if err := b.cfg.Repo.UpsertChat(msg.Chat.ID, chatKind(msg.Chat), msg.Chat.Title); err != nil {
		b.cfg.Logger.Error("failed to upsert chat", "chat_id", msg.Chat.ID, "error", err)
	}

	role := b.resolveRole(msg.From.ID)

	chat, err := b.cfg.Repo.GetChat(msg.Chat.ID)
	if err != nil {
		b.cfg.Logger.Error("failed to load chat", "chat_id", msg.Chat.ID, "error", err)
		return
	}
	chatEnabled := chat != nil && chat.Enabled

	handler, ok := handlers[cmd]
	if !ok {
		return
	}

	decision := access.Check(b.cfg.BotMode == config.ModePublic, chatEnabled, role)
	if decision.Allowed && handler.requireAdmin && !access.IsAdmin(role) {
		decision = access.Decision{Allowed: false, Reason: "admin-only command"}
	}
	if decision.Allowed && handler.requireOwner && !access.IsOwner(role) {
		decision = access.Decision{Allowed: false, Reason: "owner-only command"}
	}

	audit.Record(decisionWord(decision.Allowed), cmd, decision.Reason, msg.Chat.ID, msg.From.ID)
	if !decision.Allowed {
		b.reply(ctx, msg.Chat.ID, "This command is not available in this chat.")
		return
	}

	reply := handler.fn(ctx, b, msg, role, args)
	if reply != "" {
		b.reply(ctx, msg.Chat.ID, reply)
	}
}

// resolveRole loads the caller's stored role, auto-promoting the configured
// owner id to Owner on first contact.
func (b *Bot) resolveRole(userID int64) model.Role {
	user, err := b.cfg.Repo.GetUser(userID)
	if err != nil || user == nil {
		return model.RoleUser
	}
	if userID == b.cfg.OwnerID && user.Role != model.RoleOwner {
		if err := b.cfg.Repo.SetUserRole(userID, model.RoleOwner); err == nil {
			return model.RoleOwner
		}
	}
	return user.Role
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	escaped := tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, text)
	if err := b.cfg.Notifier.SendText(ctx, chatID, escaped); err != nil {
		b.cfg.Logger.Error("failed to send command reply", "chat_id", chatID, "error", err)
	}
}

func decisionWord(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}

func chatKind(c *tgbotapi.Chat) model.ChatKind {
	switch {
	case c.IsPrivate():
		return model.ChatPrivate
	case c.IsSuperGroup():
		return model.ChatSupergroup
	case c.IsChannel():
		return model.ChatChannel
	default:
		return model.ChatGroup
	}
}

func splitCommand(text string) (cmd, args string) {
	fields := strings.SplitN(text, " ", 2)
	cmd = strings.ToLower(fields[0])
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	cmd = strings.TrimPrefix(cmd, "/")
	if len(fields) > 1 {
		args = strings.TrimSpace(fields[1])
	}
	return cmd, args
}
