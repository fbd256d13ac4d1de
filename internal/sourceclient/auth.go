package sourceclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/basket/pixivbot-go/internal/errs"
)

const oauthClientID = "MOBrBDS8blbauoSck0ZfDbtuzpyT"
const oauthClientSecret = "lsACyCD94FhDUtGTXi3QzcFE2uU1hqtDaKeqrdwj"

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// VerifyAuth forces a token refresh and reports whether the configured
// refresh token is accepted, for the doctor's OAuth exchange check.
func (c *Client) VerifyAuth(ctx context.Context) error {
	c.mu.Lock()
	c.accessToken = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
	_, err := c.validAccessToken(ctx)
	return err
}

// validAccessToken returns a usable access token, refreshing first if one is
// absent or within tokenSafetyWindow of expiry. Concurrent callers racing on
// an expired token block on the same in-flight refresh rather than each
// issuing their own.
func (c *Client) validAccessToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	tok, expiresAt := c.accessToken, c.expiresAt
	c.mu.RUnlock()

	if tok != "" && time.Until(expiresAt) > tokenSafetyWindow {
		return tok, nil
	}
	return c.refresh(ctx)
}

// refresh performs (or waits for) a single token refresh. The refreshing
// channel acts as the coalescing point: the first caller to observe it nil
// creates it and does the HTTP round-trip; later callers wait on the same
// channel and then re-read the refreshed token.
func (c *Client) refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.refreshing != nil {
		wait := c.refreshing
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		c.mu.RLock()
		tok := c.accessToken
		c.mu.RUnlock()
		if tok == "" {
			return "", errs.New(errs.Auth, errors.New("refresh did not produce a token"), "authentication failed")
		}
		return tok, nil
	}

	done := make(chan struct{})
	c.refreshing = done
	c.mu.Unlock()

	tok, expiresAt, err := c.doRefresh(ctx)

	c.mu.Lock()
	if err == nil {
		c.accessToken = tok
		c.expiresAt = expiresAt
	}
	c.refreshing = nil
	c.mu.Unlock()
	close(done)

	if err != nil {
		return "", err
	}
	return tok, nil
}

func (c *Client) doRefresh(ctx context.Context) (string, time.Time, error) {
	c.mu.RLock()
	refreshToken := c.refreshToken
	c.mu.RUnlock()

	form := url.Values{
		"client_id":      {oauthClientID},
		"client_secret":  {oauthClientSecret},
		"grant_type":     {"refresh_token"},
		"refresh_token":  {refreshToken},
		"include_policy": {"true"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, errs.New(errs.Config, err, "authentication failed")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, wrapTransport("refresh token", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, classifyHTTPError(resp.StatusCode, errors.Errorf("refresh token: unexpected status %d", resp.StatusCode))
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", time.Time{}, errs.New(errs.Auth, errors.Wrap(err, "decode token response"), "authentication failed")
	}

	c.mu.Lock()
	if parsed.RefreshToken != "" {
		c.refreshToken = parsed.RefreshToken
	}
	c.mu.Unlock()

	return parsed.AccessToken, time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second), nil
}
