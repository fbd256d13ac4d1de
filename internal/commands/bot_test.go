package commands

import (
	"context"
	"log/slog"
	"io"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/pixivbot-go/internal/config"
	"github.com/basket/pixivbot-go/internal/downloader"
	"github.com/basket/pixivbot-go/internal/model"
	"github.com/basket/pixivbot-go/internal/notifier"
)

type fakeRepo struct {
	users map[int64]*model.User
	chats map[int64]*model.Chat
	sent  []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[int64]*model.User{}, chats: map[int64]*model.Chat{}}
}

func (r *fakeRepo) UpsertUser(id int64, username string) error {
	if _, ok := r.users[id]; !ok {
		r.users[id] = &model.User{ID: id, Username: username, Role: model.RoleUser}
	}
	return nil
}
func (r *fakeRepo) GetUser(id int64) (*model.User, error) { return r.users[id], nil }
func (r *fakeRepo) SetUserRole(id int64, role model.Role) error {
	if u, ok := r.users[id]; ok {
		u.Role = role
	}
	return nil
}
func (r *fakeRepo) UpsertChat(id int64, kind model.ChatKind, title string) error {
	if _, ok := r.chats[id]; !ok {
		r.chats[id] = &model.Chat{ID: id, Kind: kind, Title: title}
	}
	return nil
}
func (r *fakeRepo) SetChatEnabled(id int64, enabled bool) error {
	if c, ok := r.chats[id]; ok {
		c.Enabled = enabled
	}
	return nil
}
func (r *fakeRepo) GetChat(id int64) (*model.Chat, error) { return r.chats[id], nil }
func (r *fakeRepo) GetChatSettings(chatID int64) (*model.ChatSettings, error) {
	return &model.ChatSettings{ChatID: chatID, BlurSensitive: true}, nil
}
func (r *fakeRepo) SetChatSettings(cs model.ChatSettings) error { return nil }
func (r *fakeRepo) UpsertTaskByKindValue(kind model.TaskKind, value string, intervalSec int, userID int64) (*model.Task, error) {
	return &model.Task{ID: 1, Kind: kind, Value: value}, nil
}
func (r *fakeRepo) GetTaskByKindValue(kind model.TaskKind, value string) (*model.Task, error) {
	return nil, nil
}
func (r *fakeRepo) UpsertSubscription(chatID, taskID int64, filter model.TagFilter) (*model.Subscription, error) {
	return &model.Subscription{ID: 1, ChatID: chatID, TaskID: taskID, Filter: filter}, nil
}
func (r *fakeRepo) DeleteSubscription(chatID, taskID int64) error { return nil }
func (r *fakeRepo) ListSubscriptionsForChat(chatID int64) ([]model.Subscription, error) {
	return nil, nil
}
func (r *fakeRepo) GetTask(id int64) (*model.Task, error) { return nil, nil }

type fakeNotifier struct{ texts []string }

func (f *fakeNotifier) SendText(ctx context.Context, chatID int64, markdown string) error {
	f.texts = append(f.texts, markdown)
	return nil
}
func (f *fakeNotifier) SanitizeText(s string) string { return s }
func (f *fakeNotifier) SendMediaGroup(ctx context.Context, chatID int64, paths, urls []string, startPage, totalPages, startBatch int, firstCaption string, blurFlags []bool) notifier.BatchSendResult {
	return notifier.BatchSendResult{DeliveredPageIndices: make(map[int]struct{})}
}

type fakeSource struct{}

func (fakeSource) WorkDetail(ctx context.Context, workID int64) (model.Work, error) {
	return model.Work{ID: workID, PageCount: 1, ImageURLs: []string{"https://i.pximg.net/a.jpg"}}, nil
}

type noopDownloader struct{}

func (noopDownloader) DownloadAll(ctx context.Context, urls []string) []downloader.Result {
	out := make([]downloader.Result, len(urls))
	for i, u := range urls {
		out[i] = downloader.Result{Path: "/cache/" + u}
	}
	return out
}

func testBot(repo *fakeRepo, notif *fakeNotifier, ownerID int64, mode config.BotMode) *Bot {
	return New(Config{
		API:                    nil,
		Repo:                   repo,
		Source:                 fakeSource{},
		Notifier:               notif,
		Downloader:             noopDownloader{},
		Logger:                 slog.New(slog.NewTextHandler(io.Discard, nil)),
		OwnerID:                ownerID,
		BotMode:                mode,
		DefaultTaskIntervalSec: 7200,
		MaxRetryCount:          3,
	})
}

func textMessage(chatID, fromID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID, Type: "private"},
		From: &tgbotapi.User{ID: fromID, UserName: "u"},
		Text: text,
	}
}

func TestHandleMessage_PrivateModeDisabledChatDeniesPlainUser(t *testing.T) {
	repo := newFakeRepo()
	notif := &fakeNotifier{}
	b := testBot(repo, notif, 999, config.ModePrivate)

	b.handleMessage(context.Background(), textMessage(1, 2, "/list"))

	if len(notif.texts) != 1 {
		t.Fatalf("expected one reply, got %d", len(notif.texts))
	}
}

func TestHandleMessage_PublicModeAllowsSub(t *testing.T) {
	repo := newFakeRepo()
	notif := &fakeNotifier{}
	b := testBot(repo, notif, 999, config.ModePublic)

	b.handleMessage(context.Background(), textMessage(1, 2, "/sub 12345 +Genshin"))

	if len(notif.texts) != 1 {
		t.Fatalf("expected one reply, got %d", len(notif.texts))
	}
}

func TestHandleMessage_AdminOnlyCommandDeniedForPlainUser(t *testing.T) {
	repo := newFakeRepo()
	notif := &fakeNotifier{}
	b := testBot(repo, notif, 999, config.ModePublic)

	b.handleMessage(context.Background(), textMessage(1, 2, "/enablechat"))

	if len(notif.texts) != 1 {
		t.Fatalf("expected one denial reply, got %d", len(notif.texts))
	}
}

func TestHandleMessage_OwnerAutoPromotedOnFirstContact(t *testing.T) {
	repo := newFakeRepo()
	notif := &fakeNotifier{}
	b := testBot(repo, notif, 42, config.ModePrivate)

	b.handleMessage(context.Background(), textMessage(1, 42, "/enablechat"))

	if repo.users[42].Role != model.RoleOwner {
		t.Fatalf("expected owner id to be auto-promoted, got role %v", repo.users[42].Role)
	}
}
