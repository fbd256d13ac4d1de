// Package sourceclient is the OAuth-refreshing HTTP client against the
// image-hosting source (spec.md §4.1). It holds the token pair behind a
// single-writer lock: refreshes are the only writers, so N concurrent
// callers needing a refresh coalesce into exactly one HTTP round-trip.
package sourceclient

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/basket/pixivbot-go/internal/errs"
	"github.com/basket/pixivbot-go/internal/model"
)

const (
	defaultBaseURL     = "https://app-api.pixiv.net"
	defaultAuthURL     = "https://oauth.secure.pixiv.net/auth/token"
	defaultUserAgent   = "PixivAndroidApp/5.0.234 (Android 11; Pixel 5)"
	tokenSafetyWindow  = 60 * time.Second
	sensitiveThreshold = 4 // source sanity_level at/above this is treated Sensitive
)

// Client is an HTTP session against the source. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authURL    string

	mu           sync.RWMutex
	refreshToken string
	accessToken  string
	expiresAt    time.Time
	refreshing   chan struct{} // non-nil while a refresh is in flight
}

// New builds a Client. refreshToken is the long-lived OAuth refresh
// credential from config (pixiv.refresh_token).
func New(refreshToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient:   httpClient,
		baseURL:      defaultBaseURL,
		authURL:      defaultAuthURL,
		refreshToken: refreshToken,
	}
}

// ListAuthorWorks paginates an author's works, newest first.
func (c *Client) ListAuthorWorks(ctx context.Context, authorID int64, offset int) ([]model.Work, error) {
	var page illustListResponse
	err := c.getJSON(ctx, "/v1/user/illusts", map[string]string{
		"user_id": itoa(authorID),
		"type":    "illust",
		"offset":  itoa(int64(offset)),
	}, &page)
	if err != nil {
		return nil, err
	}
	return toWorks(page.Illusts), nil
}

// WorkDetail returns full metadata for one work.
func (c *Client) WorkDetail(ctx context.Context, workID int64) (model.Work, error) {
	var detail illustDetailResponse
	err := c.getJSON(ctx, "/v1/illust/detail", map[string]string{
		"illust_id": itoa(workID),
	}, &detail)
	if err != nil {
		return model.Work{}, err
	}
	return toWork(detail.Illust), nil
}

// Ranking returns the ranking list for mode at date (empty = latest
// available), along with the ranking date the source actually served —
// callers must key their watermark off the returned date, not the local
// clock, since "latest available" can lag a calendar-day boundary.
func (c *Client) Ranking(ctx context.Context, mode model.RankingMode, date string) (model.RankingPage, error) {
	query := map[string]string{"mode": string(mode), "filter": "for_android"}
	if date != "" {
		query["date"] = date
	}
	var page rankingResponse
	if err := c.getJSON(ctx, "/v1/illust/ranking", query, &page); err != nil {
		return model.RankingPage{}, err
	}
	return model.RankingPage{Works: toWorks(page.Illusts), Date: rankingDate(page.NextURL, date)}, nil
}

// rankingDate extracts the "date" query parameter from next_url, which the
// source stamps with the ranking date of the page just served. Falls back
// to the date requested (if any) when next_url is absent, e.g. on the final
// page of a ranking.
func rankingDate(nextURL, requestedDate string) string {
	if nextURL != "" {
		if u, err := url.Parse(nextURL); err == nil {
			if d := u.Query().Get("date"); d != "" {
				return d
			}
		}
	}
	return requestedDate
}

// UserDetail returns an author's current display name.
func (c *Client) UserDetail(ctx context.Context, userID int64) (model.UserProfile, error) {
	var detail userDetailResponse
	err := c.getJSON(ctx, "/v1/user/detail", map[string]string{
		"user_id": itoa(userID),
		"filter":  "for_android",
	}, &detail)
	if err != nil {
		return model.UserProfile{}, err
	}
	return model.UserProfile{ID: detail.User.ID, Name: detail.User.Name}, nil
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// classifyHTTPError maps a completed-but-unsuccessful response or transport
// failure into the shared error taxonomy (spec.md §7), never letting a raw
// *url.Error or status code escape the package.
func classifyHTTPError(statusCode int, cause error) *errs.Error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return errs.New(errs.Auth, cause, "authentication failed")
	case statusCode == http.StatusTooManyRequests:
		return errs.New(errs.RateLimited, cause, "rate limited")
	case statusCode >= 500:
		return errs.New(errs.Upstream, cause, "source unavailable")
	case statusCode > 0:
		return errs.New(errs.Upstream, cause, "source request failed")
	default:
		return errs.New(errs.Transport, cause, "network error")
	}
}

// wrapTransport classifies a transport-level failure (no response at all).
func wrapTransport(op string, cause error) error {
	return classifyHTTPError(0, errors.Wrap(cause, op))
}
