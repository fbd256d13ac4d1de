// Package model holds the persistence-agnostic data types shared across the
// store, scheduler, delivery, and command layers.
package model

import "time"

// Role is a user's privilege level within the bot.
type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ChatKind mirrors the chat-platform's chat types.
type ChatKind string

const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSupergroup ChatKind = "supergroup"
	ChatChannel    ChatKind = "channel"
)

// TaskKind distinguishes author polling from ranking polling.
type TaskKind string

const (
	TaskAuthor  TaskKind = "author"
	TaskRanking TaskKind = "ranking"
)

// RankingMode is the ranking period, used both as Task.Value and in latest_data.
type RankingMode string

const (
	RankingDaily   RankingMode = "daily"
	RankingWeekly  RankingMode = "weekly"
	RankingMonthly RankingMode = "monthly"
)

// User is a chat-platform account known to the bot.
type User struct {
	ID        int64
	Username  string
	Role      Role
	CreatedAt time.Time
}

// Chat is a chat-platform conversation the bot can post into.
type Chat struct {
	ID        int64
	Kind      ChatKind
	Title     string
	Enabled   bool
	CreatedAt time.Time
}

// ChatSettings holds per-chat delivery preferences.
type ChatSettings struct {
	ChatID         int64
	BlurSensitive  bool
	SensitiveTags  []string
	ExcludedTags   []string
}

// TagFilter is the flat (any-of include) AND (none-of exclude) predicate
// applied to a work's tag set. Never generalize this into a parsed AST — see
// DESIGN.md / spec.md §9.
type TagFilter struct {
	Include []string
	Exclude []string
}

// Merge unions both sides of two filters. Associative and commutative.
func (f TagFilter) Merge(g TagFilter) TagFilter {
	return TagFilter{
		Include: unionStrings(f.Include, g.Include),
		Exclude: unionStrings(f.Exclude, g.Exclude),
	}
}

// Passes reports whether a work's tag set satisfies the filter, additionally
// excluding any tag present in extraExclude (the chat's ChatSettings.ExcludedTags).
func (f TagFilter) Passes(workTags []string, extraExclude []string) bool {
	tagSet := make(map[string]struct{}, len(workTags))
	for _, t := range workTags {
		tagSet[t] = struct{}{}
	}

	if len(f.Include) > 0 {
		matched := false
		for _, t := range f.Include {
			if _, ok := tagSet[t]; ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, t := range f.Exclude {
		if _, ok := tagSet[t]; ok {
			return false
		}
	}
	for _, t := range extraExclude {
		if _, ok := tagSet[t]; ok {
			return false
		}
	}
	return true
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Task is one deduplicated polling target, shared across subscribers.
type Task struct {
	ID           int64
	Kind         TaskKind
	Value        string // source user id for Author, RankingMode for Ranking
	IntervalSec  int
	NextPollAt   time.Time
	LastPolledAt *time.Time
	LatestData   map[string]any // {"latest_illust_id": int64} or {"date": "2025-01-20"}
	CreatedBy    int64
	UpdatedBy    int64
}

// LatestIllustID reads latest_data.latest_illust_id, defaulting to 0.
func (t Task) LatestIllustID() int64 {
	v, ok := t.LatestData["latest_illust_id"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// LatestDate reads latest_data.date, defaulting to "".
func (t Task) LatestDate() string {
	v, _ := t.LatestData["date"].(string)
	return v
}

// PendingDelivery is durable resume state for a partially-sent work.
type PendingDelivery struct {
	IllustID   int64
	TotalPages int
	SentPages  []int
	RetryCount int
}

// Subscription connects one Chat to one Task with its own filter.
type Subscription struct {
	ID        int64
	ChatID    int64
	TaskID    int64
	Filter    TagFilter
	Pending   *PendingDelivery
	CreatedAt time.Time
}

// Work is a published content unit on the source.
type Work struct {
	ID         int64
	Title      string
	AuthorID   int64
	AuthorName string
	Tags       []string
	PageCount  int
	ImageURLs  []string
	CreatedAt  time.Time
	Sensitive  bool // sanity_level above the source's own threshold
}

// IsMultiPage reports whether the work spans more than one page.
func (w Work) IsMultiPage() bool { return w.PageCount > 1 }

// UserProfile is the source's current display-name record for an author.
type UserProfile struct {
	ID   int64
	Name string
}

// RankingPage is one ranking request's result: the works on that page and
// the ranking date the source actually served, which may differ from the
// date requested (e.g. an empty request returns whatever is current).
type RankingPage struct {
	Works []Work
	Date  string // "2006-01-02", as reported by the source
}
