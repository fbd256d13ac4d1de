package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/basket/pixivbot-go/internal/delivery"
	"github.com/basket/pixivbot-go/internal/downloader"
	"github.com/basket/pixivbot-go/internal/errs"
	"github.com/basket/pixivbot-go/internal/model"
	"github.com/basket/pixivbot-go/internal/notifier"
)

type fakeStore struct {
	subs       map[int64][]model.Subscription
	latestData map[int64]map[string]any
	settings   map[int64]model.ChatSettings
	pending    map[int64]model.PendingDelivery
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subs:       make(map[int64][]model.Subscription),
		latestData: make(map[int64]map[string]any),
		settings:   make(map[int64]model.ChatSettings),
		pending:    make(map[int64]model.PendingDelivery),
	}
}

func (s *fakeStore) GetChatSettings(chatID int64) (*model.ChatSettings, error) {
	cs, ok := s.settings[chatID]
	if !ok {
		cs = model.ChatSettings{ChatID: chatID}
	}
	return &cs, nil
}

func (s *fakeStore) SetPending(subID int64, pending model.PendingDelivery) error {
	s.pending[subID] = pending
	return nil
}

func (s *fakeStore) ClearPending(subID int64) error {
	delete(s.pending, subID)
	return nil
}

func (s *fakeStore) ClaimDueTask(now time.Time) (*model.Task, error) { return nil, nil }
func (s *fakeStore) SetNextPollAt(id int64, at time.Time) error      { return nil }

func (s *fakeStore) SetLatestData(id int64, data map[string]any) error {
	s.latestData[id] = data
	return nil
}

func (s *fakeStore) ActiveSubscriptionsFor(taskID int64) ([]model.Subscription, error) {
	return s.subs[taskID], nil
}

type fakeSource struct {
	authorWorks  []model.Work
	rankingWorks []model.Work
	rankingDate  string
}

func (f *fakeSource) ListAuthorWorks(ctx context.Context, authorID int64, offset int) ([]model.Work, error) {
	return f.authorWorks, nil
}

func (f *fakeSource) Ranking(ctx context.Context, mode model.RankingMode, date string) (model.RankingPage, error) {
	return model.RankingPage{Works: f.rankingWorks, Date: f.rankingDate}, nil
}

func (f *fakeSource) UserDetail(ctx context.Context, userID int64) (model.UserProfile, error) {
	return model.UserProfile{ID: userID, Name: "author"}, nil
}

type alwaysOKDownloader struct{}

func (alwaysOKDownloader) DownloadAll(ctx context.Context, urls []string) []downloader.Result {
	out := make([]downloader.Result, len(urls))
	for i, u := range urls {
		out[i] = downloader.Result{Path: "/cache/" + u}
	}
	return out
}

type alwaysOKNotifier struct{}

func (alwaysOKNotifier) SanitizeText(s string) string { return s }

func (alwaysOKNotifier) SendMediaGroup(ctx context.Context, chatID int64, paths, urls []string, startPage, totalPages, startBatch int, firstCaption string, blurFlags []bool) notifier.BatchSendResult {
	result := notifier.BatchSendResult{DeliveredPageIndices: make(map[int]struct{})}
	for i := range paths {
		result.DeliveredPageIndices[startPage+i] = struct{}{}
	}
	return result
}

type alwaysFailNotifier struct{}

func (alwaysFailNotifier) SanitizeText(s string) string { return s }

func (alwaysFailNotifier) SendMediaGroup(ctx context.Context, chatID int64, paths, urls []string, startPage, totalPages, startBatch int, firstCaption string, blurFlags []bool) notifier.BatchSendResult {
	b := startBatch
	return notifier.BatchSendResult{DeliveredPageIndices: make(map[int]struct{}), FirstFailedBatch: &b, TerminalError: errs.Upstream}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func work(id int64) model.Work {
	return model.Work{ID: id, Title: "work", PageCount: 1, ImageURLs: []string{"https://i.pximg.net/a.jpg"}}
}

func TestAuthorEngine_FirstObservationSeedsWatermarkWithoutDelivering(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{authorWorks: []model.Work{work(10), work(20)}}
	store.subs[1] = []model.Subscription{{ID: 1, ChatID: 100, TaskID: 1}}

	engine := &AuthorEngine{
		store:  store,
		source: source,
		deps:   delivery.Deps{Downloader: alwaysOKDownloader{}, Notifier: alwaysOKNotifier{}, MaxRetryCount: 3},
		logger: testLogger(),
	}
	task := model.Task{ID: 1, Kind: model.TaskAuthor, Value: "5", LatestData: map[string]any{}}

	if err := engine.Execute(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.latestData[1]["latest_illust_id"]; got != int64(20) {
		t.Fatalf("expected watermark seeded to 20, got %v", got)
	}
}

func TestAuthorEngine_DeliversNewWorksAscendingAndAdvancesWatermark(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{authorWorks: []model.Work{work(30), work(10), work(20)}}
	store.subs[1] = []model.Subscription{{ID: 1, ChatID: 100, TaskID: 1}}

	engine := &AuthorEngine{
		store:  store,
		source: source,
		deps:   delivery.Deps{Downloader: alwaysOKDownloader{}, Notifier: alwaysOKNotifier{}, MaxRetryCount: 3},
		logger: testLogger(),
	}
	task := model.Task{ID: 1, Kind: model.TaskAuthor, Value: "5", LatestData: map[string]any{"latest_illust_id": int64(5)}}

	if err := engine.Execute(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.latestData[1]["latest_illust_id"]; got != int64(30) {
		t.Fatalf("expected watermark advanced to 30, got %v", got)
	}
}

func TestAuthorEngine_HoldsWatermarkOnPartialFailure(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{authorWorks: []model.Work{work(10), work(20)}}
	store.subs[1] = []model.Subscription{{ID: 1, ChatID: 100, TaskID: 1}}

	engine := &AuthorEngine{
		store:  store,
		source: source,
		deps:   delivery.Deps{Downloader: alwaysOKDownloader{}, Notifier: alwaysFailNotifier{}, MaxRetryCount: 3},
		logger: testLogger(),
	}
	task := model.Task{ID: 1, Kind: model.TaskAuthor, Value: "5", LatestData: map[string]any{"latest_illust_id": int64(5)}}

	if err := engine.Execute(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.latestData[1]; ok {
		t.Fatalf("expected watermark untouched, got %+v", store.latestData[1])
	}
}

func TestRankingEngine_FirstObservationSeedsDateWithoutDelivering(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{rankingWorks: []model.Work{work(1)}, rankingDate: "2026-07-30"}

	engine := &RankingEngine{
		store:  store,
		source: source,
		deps:   delivery.Deps{Downloader: alwaysOKDownloader{}, Notifier: alwaysOKNotifier{}, MaxRetryCount: 3},
		logger: testLogger(),
		topN:   10,
	}
	task := model.Task{ID: 2, Kind: model.TaskRanking, Value: "daily", LatestData: map[string]any{}}

	if err := engine.Execute(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.latestData[2]["date"]; !ok {
		t.Fatalf("expected date to be seeded")
	}
}

func TestRankingEngine_DeliversTopNAndAdvancesDate(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{rankingWorks: []model.Work{work(1), work(2), work(3)}, rankingDate: "2026-07-30"}
	store.subs[2] = []model.Subscription{{ID: 1, ChatID: 100, TaskID: 2}}

	engine := &RankingEngine{
		store:  store,
		source: source,
		deps:   delivery.Deps{Downloader: alwaysOKDownloader{}, Notifier: alwaysOKNotifier{}, MaxRetryCount: 3},
		logger: testLogger(),
		topN:   2,
	}
	task := model.Task{ID: 2, Kind: model.TaskRanking, Value: "daily", LatestData: map[string]any{"date": "2026-07-29"}}

	if err := engine.Execute(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.latestData[2]["date"]; got != "2026-07-30" {
		t.Fatalf("expected date advanced to source-reported date, got %v", got)
	}
}

func TestRankingEngine_HoldsWhenSourceDateUnchanged(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{rankingWorks: []model.Work{work(1)}, rankingDate: "2026-07-29"}
	store.subs[2] = []model.Subscription{{ID: 1, ChatID: 100, TaskID: 2}}

	engine := &RankingEngine{
		store:  store,
		source: source,
		deps:   delivery.Deps{Downloader: alwaysOKDownloader{}, Notifier: alwaysOKNotifier{}, MaxRetryCount: 3},
		logger: testLogger(),
		topN:   10,
	}
	task := model.Task{ID: 2, Kind: model.TaskRanking, Value: "daily", LatestData: map[string]any{"date": "2026-07-29"}}

	if err := engine.Execute(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.latestData[2]; ok {
		t.Fatalf("expected no store write when the source's ranking date hasn't advanced")
	}
}

func TestJitter_WithinBounds(t *testing.T) {
	min := 10 * time.Millisecond
	max := 20 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := jitter(min, max)
		if got < min || got > max {
			t.Fatalf("jitter %v out of bounds [%v, %v]", got, min, max)
		}
	}
	if got := jitter(min, min); got != min {
		t.Fatalf("expected unjittered min when max<=min, got %v", got)
	}
}
