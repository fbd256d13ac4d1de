// Package notifier is the Notifier (spec.md §4.5): it wraps the chat
// platform's client in a throttled adaptor and handles media-group batching
// geometry, continuation captions, and sensitive-page blurring.
package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"github.com/basket/pixivbot-go/internal/errs"
	"github.com/basket/pixivbot-go/internal/filecache"
)

// MaxPerGroup is the chat platform's media-group size ceiling.
const MaxPerGroup = 10

// Notifier sends text and media-group messages under platform rate limits.
type Notifier struct {
	bot   *tgbotapi.BotAPI
	cache *filecache.Cache

	global *rate.Limiter

	perChatMu sync.Mutex
	perChat   map[int64]*rate.Limiter

	sanitizer *bluemonday.Policy
}

// New wraps bot with the platform's documented rate ceilings: 30 msg/s
// globally, 1 msg/s per chat. cache backs the blurred-derivative rendering
// used for sensitive pages; it may be nil, in which case sensitive pages
// still get the native HasSpoiler flag but no blurred fallback image.
func New(bot *tgbotapi.BotAPI, cache *filecache.Cache) *Notifier {
	return &Notifier{
		bot:       bot,
		cache:     cache,
		global:    rate.NewLimiter(rate.Limit(30), 30),
		perChat:   make(map[int64]*rate.Limiter),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (n *Notifier) limiterFor(chatID int64) *rate.Limiter {
	n.perChatMu.Lock()
	defer n.perChatMu.Unlock()
	l, ok := n.perChat[chatID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Second), 1)
		n.perChat[chatID] = l
	}
	return l
}

// wait blocks until both the global and the per-chat limiter admit one
// message, sleeping internally so callers never see the throttle.
func (n *Notifier) wait(ctx context.Context, chatID int64) error {
	if err := n.global.Wait(ctx); err != nil {
		return errs.New(errs.Transport, err, "could not send message")
	}
	if err := n.limiterFor(chatID).Wait(ctx); err != nil {
		return errs.New(errs.Transport, err, "could not send message")
	}
	return nil
}

// SanitizeText strips HTML from source-supplied strings (titles, usernames)
// before they are embedded in an escaped MarkdownV2 caption.
func (n *Notifier) SanitizeText(s string) string {
	return n.sanitizer.Sanitize(s)
}

// SendText sends a MarkdownV2 message. Callers are responsible for escaping
// dynamic content with tgbotapi.EscapeText first.
func (n *Notifier) SendText(ctx context.Context, chatID int64, markdown string) error {
	if err := n.wait(ctx, chatID); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, markdown)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := n.bot.Send(msg); err != nil {
		return errs.New(errs.Transport, err, "could not send message")
	}
	return nil
}

// BatchSendResult reports how much of a media-group send succeeded.
type BatchSendResult struct {
	DeliveredPageIndices map[int]struct{}
	FirstFailedBatch     *int
	TerminalError        errs.Kind
}

// ContinuationCaption formats the caption for batch b (1-indexed display) of
// total, escaped for MarkdownV2.
func ContinuationCaption(batchDisplay, total int) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, fmt.Sprintf("(continued %d/%d)", batchDisplay, total))
}

// EscapeCaption escapes s for use as a MarkdownV2 caption. Callers embedding
// source-supplied text (work titles, usernames) must run it through
// SanitizeText first — this only escapes MarkdownV2 metacharacters, it does
// not strip markup.
func EscapeCaption(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}

// TotalBatches returns ceil(pageCount / MaxPerGroup).
func TotalBatches(pageCount int) int {
	return (pageCount + MaxPerGroup - 1) / MaxPerGroup
}

// SendMediaGroup sends paths[startPage:] onward in MaxPerGroup batches,
// starting numbering at startBatch (0-indexed) — used both for a fresh send
// (startBatch=0) and for resuming a PendingDelivery mid-work. firstCaption
// is used only on the very first batch sent across the whole call. urls is
// the source URL for each entry in paths, in the same order, and is used
// only to key the blurred derivative for pages flagged in blurFlags.
func (n *Notifier) SendMediaGroup(ctx context.Context, chatID int64, paths, urls []string, startPage, totalPages, startBatch int, firstCaption string, blurFlags []bool) BatchSendResult {
	result := BatchSendResult{DeliveredPageIndices: make(map[int]struct{})}
	total := TotalBatches(totalPages)

	page := startPage
	for batch := startBatch; page < startPage+len(paths); batch++ {
		end := page + MaxPerGroup
		if end > startPage+len(paths) {
			end = startPage + len(paths)
		}
		batchPaths := paths[page-startPage : end-startPage]
		batchURLs := urls[page-startPage : end-startPage]

		caption := firstCaption
		if batch > 0 {
			caption = ContinuationCaption(batch+1, total)
		}

		if err := n.sendOneBatch(ctx, chatID, batchPaths, batchURLs, page, caption, blurFlags); err != nil {
			b := batch
			result.FirstFailedBatch = &b
			result.TerminalError = errs.PartialSend
			if e, ok := err.(*errs.Error); ok {
				result.TerminalError = e.Kind
			}
			return result
		}
		for i := page; i < end; i++ {
			result.DeliveredPageIndices[i] = struct{}{}
		}
		page = end
	}
	return result
}

func (n *Notifier) sendOneBatch(ctx context.Context, chatID int64, paths, urls []string, startPage int, caption string, blurFlags []bool) error {
	if err := n.wait(ctx, chatID); err != nil {
		return err
	}

	media := make([]interface{}, 0, len(paths))
	for i, path := range paths {
		pageIdx := startPage + i
		blurred := pageIdx < len(blurFlags) && blurFlags[pageIdx]
		if blurred && n.cache != nil && i < len(urls) {
			if derivative, err := BlurredPath(n.cache, urls[i], path); err == nil {
				path = derivative
			}
		}

		photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(path))
		if blurred {
			photo.HasSpoiler = true
		}
		if i == 0 {
			photo.Caption = caption
			photo.ParseMode = tgbotapi.ModeMarkdownV2
		}
		media = append(media, photo)
	}

	group := tgbotapi.NewMediaGroup(chatID, media)
	if _, err := n.bot.Request(group); err != nil {
		return errs.New(errs.PartialSend, err, "could not deliver images")
	}
	return nil
}
