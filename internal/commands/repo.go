package commands

import (
	"context"

	"github.com/basket/pixivbot-go/internal/delivery"
	"github.com/basket/pixivbot-go/internal/model"
)

// Repo is the narrow store surface the command handlers need.
type Repo interface {
	UpsertUser(id int64, username string) error
	GetUser(id int64) (*model.User, error)
	SetUserRole(id int64, role model.Role) error

	UpsertChat(id int64, kind model.ChatKind, title string) error
	SetChatEnabled(id int64, enabled bool) error
	GetChat(id int64) (*model.Chat, error)
	GetChatSettings(chatID int64) (*model.ChatSettings, error)
	SetChatSettings(cs model.ChatSettings) error

	UpsertTaskByKindValue(kind model.TaskKind, value string, intervalSec int, userID int64) (*model.Task, error)
	GetTaskByKindValue(kind model.TaskKind, value string) (*model.Task, error)
	UpsertSubscription(chatID, taskID int64, filter model.TagFilter) (*model.Subscription, error)
	DeleteSubscription(chatID, taskID int64) error
	ListSubscriptionsForChat(chatID int64) ([]model.Subscription, error)
	GetTask(id int64) (*model.Task, error)
}

// Source is the narrow sourceclient.Client surface /download needs.
type Source interface {
	WorkDetail(ctx context.Context, workID int64) (model.Work, error)
}

// Notifier is the narrow notifier.Notifier surface the command handlers need.
type Notifier interface {
	delivery.Sends
	SendText(ctx context.Context, chatID int64, markdown string) error
}
