package sourceclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/basket/pixivbot-go/internal/errs"
)

const sourceReferer = "https://www.pixiv.net/"

// getJSON issues an authenticated GET against path with query, decoding the
// JSON body into out. A 401/403 invalidates the cached token and retries
// exactly once after a fresh refresh, per spec.md §4.1's HTTP error mapping.
func (c *Client) getJSON(ctx context.Context, path string, query map[string]string, out any) error {
	resp, err := c.doGet(ctx, path, query)
	if err != nil {
		if errs.Is(err, errs.Auth) {
			c.invalidateToken()
			resp, err = c.doGet(ctx, path, query)
		}
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.New(errs.Upstream, errors.Wrap(err, "decode response"), "source returned an unreadable response")
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, path string, query map[string]string) (*http.Response, error) {
	token, err := c.validAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		v := url.Values{}
		for k, val := range query {
			v.Set(k, val)
		}
		u += "?" + v.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errs.New(errs.Config, err, "operation failed")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Referer", sourceReferer)
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransport("GET "+path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, classifyHTTPError(resp.StatusCode, errors.Errorf("GET %s: unexpected status %d", path, resp.StatusCode))
	}
	return resp, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}
