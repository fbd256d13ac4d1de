// Package delivery is the DeliveryFSM (spec.md §4.7): for each
// (Subscription, Work) pair it produces a Success/Partial/Failure/Abandoned
// outcome and the resulting PendingDelivery, as a pure function of its
// inputs — grounded on the teacher's persistence.TaskStatus retry/poison
// shape (internal/persistence/store.go), generalized from "retry a task" to
// "retry a partially-sent work".
package delivery

import (
	"context"

	"github.com/basket/pixivbot-go/internal/downloader"
	"github.com/basket/pixivbot-go/internal/model"
	"github.com/basket/pixivbot-go/internal/notifier"
)

// Outcome is the terminal classification of one FSM run.
type Outcome string

const (
	Success   Outcome = "success"
	Partial   Outcome = "partial"
	Failure   Outcome = "failure"
	Abandoned Outcome = "abandoned"
	Dropped   Outcome = "dropped" // filtered out; not delivered, no pending
)

// Result is the FSM's full verdict: the outcome, the updated pending state
// (nil means "clear pending"), and whether the caller may advance the
// task-level watermark past this work.
type Result struct {
	Outcome          Outcome
	Pending          *model.PendingDelivery
	AdvanceWatermark bool
}

// Downloads is the narrow downloader.Downloader surface the FSM needs,
// named so tests can exercise property 5 (FSM determinism) with a fake.
type Downloads interface {
	DownloadAll(ctx context.Context, urls []string) []downloader.Result
}

// Sends is the narrow notifier.Notifier surface the FSM needs.
type Sends interface {
	SendMediaGroup(ctx context.Context, chatID int64, paths, urls []string, startPage, totalPages, startBatch int, firstCaption string, blurFlags []bool) notifier.BatchSendResult
	// SanitizeText strips HTML from source-supplied text before it is
	// escaped into a caption (spec.md §7's raw-upstream-string invariant).
	SanitizeText(s string) string
}

// Deps are the side-effecting collaborators the FSM drives. Passed in so
// Process stays a pure function of (sub, work, deps' recorded behavior).
type Deps struct {
	Downloader    Downloads
	Notifier      Sends
	MaxRetryCount int
}

// Process runs one (Subscription, Work) pair to a terminal Result. W must
// already be known to pass S's task-level dedup (caller filters by id/date
// before invoking this).
func Process(ctx context.Context, sub model.Subscription, work model.Work, chatSettings model.ChatSettings, deps Deps) Result {
	if sub.Pending != nil && sub.Pending.IllustID == work.ID {
		return resumePending(ctx, sub, work, chatSettings, deps)
	}

	if !passesFilter(sub, work, chatSettings) {
		return Result{Outcome: Dropped, Pending: nil, AdvanceWatermark: true}
	}

	return deliver(ctx, sub, work, chatSettings, deps, 0, 0, 0)
}

func passesFilter(sub model.Subscription, work model.Work, chatSettings model.ChatSettings) bool {
	return sub.Filter.Passes(work.Tags, chatSettings.ExcludedTags)
}

// resumePending continues a work whose PendingDelivery already exists,
// picking up exactly where sent_pages left off.
func resumePending(ctx context.Context, sub model.Subscription, work model.Work, chatSettings model.ChatSettings, deps Deps) Result {
	pending := sub.Pending
	sentCount := len(pending.SentPages)
	startBatch := sentCount / notifier.MaxPerGroup

	return deliver(ctx, sub, work, chatSettings, deps, sentCount, startBatch, pending.RetryCount)
}

// deliver downloads the not-yet-sent pages and sends them starting at
// startPage/startBatch, folding the outcome into a Result. retryCount is the
// count carried over from any prior attempt at this same work.
func deliver(ctx context.Context, sub model.Subscription, work model.Work, chatSettings model.ChatSettings, deps Deps, startPage, startBatch, retryCount int) Result {
	remainingURLs := work.ImageURLs[startPage:]
	downloads := deps.Downloader.DownloadAll(ctx, remainingURLs)

	paths := make([]string, 0, len(downloads))
	for _, d := range downloads {
		if d.Err != nil {
			break
		}
		paths = append(paths, d.Path)
	}
	if len(paths) == 0 {
		return failOrAbandon(sub, work, startPage, retryCount, deps.MaxRetryCount)
	}

	blurFlags := computeBlurFlags(work, chatSettings)
	caption := captionFor(sub, work, startBatch, deps.Notifier)

	sendResult := deps.Notifier.SendMediaGroup(ctx, sub.ChatID, paths, remainingURLs[:len(paths)], startPage, work.PageCount, startBatch, caption, blurFlags)

	sentPages := unionPages(sub, sendResult.DeliveredPageIndices, startPage)

	if len(sendResult.DeliveredPageIndices) == len(paths) && len(paths) == len(remainingURLs) {
		return Result{Outcome: Success, Pending: nil, AdvanceWatermark: true}
	}

	if len(sendResult.DeliveredPageIndices) > 0 {
		return Result{
			Outcome: Partial,
			Pending: &model.PendingDelivery{
				IllustID:   work.ID,
				TotalPages: work.PageCount,
				SentPages:  sentPages,
				RetryCount: retryCount + 1,
			},
			AdvanceWatermark: false,
		}
	}

	return failOrAbandon(sub, work, startPage, retryCount, deps.MaxRetryCount)
}

func failOrAbandon(sub model.Subscription, work model.Work, startPage, retryCount, maxRetryCount int) Result {
	next := retryCount + 1
	if next >= maxRetryCount {
		return Result{Outcome: Abandoned, Pending: nil, AdvanceWatermark: true}
	}

	var sentPages []int
	if sub.Pending != nil {
		sentPages = sub.Pending.SentPages
	}
	return Result{
		Outcome: Failure,
		Pending: &model.PendingDelivery{
			IllustID:   work.ID,
			TotalPages: work.PageCount,
			SentPages:  sentPages,
			RetryCount: next,
		},
		AdvanceWatermark: false,
	}
}

func unionPages(sub model.Subscription, delivered map[int]struct{}, startPage int) []int {
	seen := make(map[int]struct{})
	var out []int
	if sub.Pending != nil {
		for _, p := range sub.Pending.SentPages {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}
	for p := range delivered {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// captionFor builds the first-batch caption from the work's title, which is
// source-supplied and untrusted: it is stripped of HTML via SanitizeText and
// then escaped for MarkdownV2, never handed to Telegram raw (spec.md §7).
func captionFor(sub model.Subscription, work model.Work, startBatch int, sends Sends) string {
	if startBatch > 0 {
		total := notifier.TotalBatches(work.PageCount)
		return notifier.ContinuationCaption(startBatch+1, total)
	}
	return notifier.EscapeCaption(sends.SanitizeText(work.Title))
}

// computeBlurFlags marks every page of a work as a spoiler when the work's
// tags intersect the chat's effective sensitive-tag set and blurring is on.
func computeBlurFlags(work model.Work, chatSettings model.ChatSettings) []bool {
	flags := make([]bool, work.PageCount)
	if !chatSettings.BlurSensitive {
		return flags
	}
	if !isSensitive(work, chatSettings.SensitiveTags) {
		return flags
	}
	for i := range flags {
		flags[i] = true
	}
	return flags
}

func isSensitive(work model.Work, sensitiveTags []string) bool {
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
