package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/pixivbot-go/internal/errs"
	"github.com/basket/pixivbot-go/internal/model"
	"github.com/basket/pixivbot-go/internal/notifier"
)

type handlerFunc func(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string

type handlerEntry struct {
	fn           handlerFunc
	requireAdmin bool
	requireOwner bool
}

var handlers = map[string]handlerEntry{
	"start":              {fn: cmdStart},
	"help":               {fn: cmdHelp},
	"sub":                {fn: cmdSub},
	"subrank":            {fn: cmdSubRank},
	"unsub":              {fn: cmdUnsub},
	"unsubrank":          {fn: cmdUnsubRank},
	"list":               {fn: cmdList},
	"settings":           {fn: cmdSettings},
	"blursensitive":      {fn: cmdBlurSensitive},
	"sensitivetags":      {fn: cmdSensitiveTags},
	"clearsensitivetags": {fn: cmdClearSensitiveTags},
	"excludetags":        {fn: cmdExcludeTags},
	"clearexcludedtags":  {fn: cmdClearExcludedTags},
	"cancel":             {fn: cmdCancel},
	"download":           {fn: cmdDownload},
	"enablechat":         {fn: cmdEnableChat, requireAdmin: true},
	"disablechat":        {fn: cmdDisableChat, requireAdmin: true},
	"setadmin":           {fn: cmdSetAdmin, requireOwner: true},
	"unsetadmin":         {fn: cmdUnsetAdmin, requireOwner: true},
	"info":               {fn: cmdInfo, requireOwner: true},
}

const helpText = `Commands:
/sub <id[,id…]> [+tag -tag …] — subscribe to one or more author ids
/subrank <daily|weekly|monthly> — subscribe to a ranking
/unsub <id[,…]> — remove author subscriptions
/unsubrank <mode> — remove a ranking subscription
/list — show this chat's subscriptions
/settings — show delivery preferences
/blursensitive <on|off> — toggle spoiler blur on sensitive pages
/sensitivetags <tags> — set the tags treated as sensitive
/clearsensitivetags — reset to the default sensitive tag list
/excludetags <tags> — tags never delivered to this chat
/clearexcludedtags — clear the chat's exclude list
/cancel — cancel any pending multi-step input
/download <url|id> — fetch and send one work immediately`

func cmdStart(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	return "Welcome. Send /help to see available commands."
}

func cmdHelp(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	return helpText
}

func cmdSub(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	ids, rest, err := parseIDArgs(args)
	if err != nil {
		return "Usage: /sub <id[,id…]> [+tag -tag …] — " + err.Error()
	}
	filter := parseTagFilter(rest)

	var subscribed []string
	for _, id := range ids {
		task, err := b.cfg.Repo.UpsertTaskByKindValue(model.TaskAuthor, strconv.FormatInt(id, 10), b.cfg.DefaultTaskIntervalSec, msg.From.ID)
		if err != nil {
			b.cfg.Logger.Error("sub: failed to upsert task", "author_id", id, "error", err)
			continue
		}
		if _, err := b.cfg.Repo.UpsertSubscription(msg.Chat.ID, task.ID, filter); err != nil {
			b.cfg.Logger.Error("sub: failed to upsert subscription", "author_id", id, "error", err)
			continue
		}
		subscribed = append(subscribed, strconv.FormatInt(id, 10))
	}
	if len(subscribed) == 0 {
		return "Could not subscribe to any of the given ids."
	}
	return "Subscribed to author(s): " + strings.Join(subscribed, ", ")
}

func cmdSubRank(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	mode, err := parseRankingMode(args)
	if err != nil {
		return "Usage: /subrank <daily|weekly|monthly> — " + err.Error()
	}
	task, err := b.cfg.Repo.UpsertTaskByKindValue(model.TaskRanking, string(mode), b.cfg.DefaultTaskIntervalSec, msg.From.ID)
	if err != nil {
		return "Could not subscribe to ranking."
	}
	if _, err := b.cfg.Repo.UpsertSubscription(msg.Chat.ID, task.ID, model.TagFilter{}); err != nil {
		return "Could not subscribe to ranking."
	}
	return "Subscribed to the " + string(mode) + " ranking."
}

func cmdUnsub(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	ids, _, err := parseIDArgs(args)
	if err != nil {
		return "Usage: /unsub <id[,id…]> — " + err.Error()
	}
	var removed []string
	for _, id := range ids {
		task, err := b.cfg.Repo.GetTaskByKindValue(model.TaskAuthor, strconv.FormatInt(id, 10))
		if err != nil || task == nil {
			continue
		}
		if err := b.cfg.Repo.DeleteSubscription(msg.Chat.ID, task.ID); err == nil {
			removed = append(removed, strconv.FormatInt(id, 10))
		}
	}
	if len(removed) == 0 {
		return "No matching subscriptions found."
	}
	return "Unsubscribed from author(s): " + strings.Join(removed, ", ")
}

func cmdUnsubRank(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	mode, err := parseRankingMode(args)
	if err != nil {
		return "Usage: /unsubrank <daily|weekly|monthly> — " + err.Error()
	}
	task, err := b.cfg.Repo.GetTaskByKindValue(model.TaskRanking, string(mode))
	if err != nil || task == nil {
		return "No matching ranking subscription found."
	}
	if err := b.cfg.Repo.DeleteSubscription(msg.Chat.ID, task.ID); err != nil {
		return "Could not remove ranking subscription."
	}
	return "Unsubscribed from the " + string(mode) + " ranking."
}

func cmdList(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	subs, err := b.cfg.Repo.ListSubscriptionsForChat(msg.Chat.ID)
	if err != nil {
		return "Could not load subscriptions."
	}
	if len(subs) == 0 {
		return "No subscriptions yet. Use /sub or /subrank to add one."
	}
	var lines []string
	for _, sub := range subs {
		task, err := b.cfg.Repo.GetTask(sub.TaskID)
		if err != nil || task == nil {
			continue
		}
		line := fmt.Sprintf("- %s %s", task.Kind, task.Value)
		if len(sub.Filter.Include) > 0 {
			line += " +" + strings.Join(sub.Filter.Include, " +")
		}
		if len(sub.Filter.Exclude) > 0 {
			line += " -" + strings.Join(sub.Filter.Exclude, " -")
		}
		lines = append(lines, line)
	}
	return "Subscriptions:\n" + strings.Join(lines, "\n")
}

func cmdSettings(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	cs, err := b.cfg.Repo.GetChatSettings(msg.Chat.ID)
	if err != nil {
		return "Could not load settings."
	}
	blur := "off"
	if cs.BlurSensitive {
		blur = "on"
	}
	return fmt.Sprintf("Blur sensitive pages: %s\nSensitive tags: %s\nExcluded tags: %s",
		blur, joinOrNone(cs.SensitiveTags), joinOrNone(cs.ExcludedTags))
}

func joinOrNone(tags []string) string {
	if len(tags) == 0 {
		return "(none)"
	}
	return strings.Join(tags, ", ")
}

func cmdBlurSensitive(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	enabled, err := onOff(args)
	if err != nil {
		return "Usage: /blursensitive <on|off>"
	}
	cs, err := b.cfg.Repo.GetChatSettings(msg.Chat.ID)
	if err != nil {
		return "Could not load settings."
	}
	cs.BlurSensitive = enabled
	if err := b.cfg.Repo.SetChatSettings(*cs); err != nil {
		return "Could not save settings."
	}
	return "Blur sensitive pages: " + args
}

func cmdSensitiveTags(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	tags := parseTagList(args)
	if len(tags) == 0 {
		return "Usage: /sensitivetags <tag[, tag…]>"
	}
	cs, err := b.cfg.Repo.GetChatSettings(msg.Chat.ID)
	if err != nil {
		return "Could not load settings."
	}
	cs.SensitiveTags = tags
	if err := b.cfg.Repo.SetChatSettings(*cs); err != nil {
		return "Could not save settings."
	}
	return "Sensitive tags set to: " + strings.Join(tags, ", ")
}

func cmdClearSensitiveTags(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	cs, err := b.cfg.Repo.GetChatSettings(msg.Chat.ID)
	if err != nil {
		return "Could not load settings."
	}
	cs.SensitiveTags = nil
	if err := b.cfg.Repo.SetChatSettings(*cs); err != nil {
		return "Could not save settings."
	}
	return "Sensitive tags cleared."
}

func cmdExcludeTags(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	tags := parseTagList(args)
	if len(tags) == 0 {
		return "Usage: /excludetags <tag[, tag…]>"
	}
	cs, err := b.cfg.Repo.GetChatSettings(msg.Chat.ID)
	if err != nil {
		return "Could not load settings."
	}
	cs.ExcludedTags = tags
	if err := b.cfg.Repo.SetChatSettings(*cs); err != nil {
		return "Could not save settings."
	}
	return "Excluded tags set to: " + strings.Join(tags, ", ")
}

func cmdClearExcludedTags(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	cs, err := b.cfg.Repo.GetChatSettings(msg.Chat.ID)
	if err != nil {
		return "Could not load settings."
	}
	cs.ExcludedTags = nil
	if err := b.cfg.Repo.SetChatSettings(*cs); err != nil {
		return "Could not save settings."
	}
	return "Excluded tags cleared."
}

func cmdCancel(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	return "No pending operation to cancel."
}

func cmdDownload(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	id, err := parseWorkRef(args)
	if err != nil {
		return "Usage: /download <url|id> — " + err.Error()
	}
	work, err := b.cfg.Source.WorkDetail(ctx, id)
	if err != nil {
		return errs.UserMessage(err)
	}

	cs, err := b.cfg.Repo.GetChatSettings(msg.Chat.ID)
	if err != nil {
		return "Could not load settings."
	}

	downloads := b.cfg.Downloader.DownloadAll(ctx, work.ImageURLs)
	paths := make([]string, 0, len(downloads))
	for _, d := range downloads {
		if d.Err != nil {
			break
		}
		paths = append(paths, d.Path)
	}
	if len(paths) == 0 {
		return "Could not download this work."
	}

	blurFlags := make([]bool, work.PageCount)
	if cs.BlurSensitive && isSensitiveWork(work, cs.SensitiveTags) {
		for i := range blurFlags {
			blurFlags[i] = true
		}
	}

	caption := notifier.EscapeCaption(b.cfg.Notifier.SanitizeText(work.Title))
	result := b.cfg.Notifier.SendMediaGroup(ctx, msg.Chat.ID, paths, work.ImageURLs[:len(paths)], 0, work.PageCount, 0, caption, blurFlags)
	if result.FirstFailedBatch != nil {
		return "Delivery was only partially successful."
	}
	return ""
}

func isSensitiveWork(work model.Work, sensitiveTags []string) bool {
	if work.Sensitive {
		return true
	}
	tagSet := make(map[string]struct{}, len(work.Tags))
	for _, t := range work.Tags {
		tagSet[t] = struct{}{}
	}
	for _, t := range sensitiveTags {
		if _, ok := tagSet[t]; ok {
			return true
		}
	}
	return false
}

func cmdEnableChat(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	chatID := msg.Chat.ID
	if args != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64); err == nil {
			chatID = id
		}
	}
	if err := b.cfg.Repo.SetChatEnabled(chatID, true); err != nil {
		return "Could not enable chat " + strconv.FormatInt(chatID, 10) + "."
	}
	return "Chat enabled: " + strconv.FormatInt(chatID, 10)
}

func cmdDisableChat(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	chatID := msg.Chat.ID
	if args != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64); err == nil {
			chatID = id
		}
	}
	if err := b.cfg.Repo.SetChatEnabled(chatID, false); err != nil {
		return "Could not disable chat " + strconv.FormatInt(chatID, 10) + "."
	}
	return "Chat disabled: " + strconv.FormatInt(chatID, 10)
}

func cmdSetAdmin(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	userID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		return "Usage: /setadmin <user_id>"
	}
	if err := b.cfg.Repo.SetUserRole(userID, model.RoleAdmin); err != nil {
		return errs.UserMessage(err)
	}
	return "User promoted to admin: " + strconv.FormatInt(userID, 10)
}

func cmdUnsetAdmin(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	userID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		return "Usage: /unsetadmin <user_id>"
	}
	if err := b.cfg.Repo.SetUserRole(userID, model.RoleUser); err != nil {
		return errs.UserMessage(err)
	}
	return "User demoted to regular user: " + strconv.FormatInt(userID, 10)
}

func cmdInfo(ctx context.Context, b *Bot, msg *tgbotapi.Message, role model.Role, args string) string {
	if b.cfg.Status != nil {
		return b.cfg.Status()
	}
	return "No status provider configured."
}
