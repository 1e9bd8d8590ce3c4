// Package mediawiki is a small MediaWiki Action API client: read the
// latest revision of a page and replace its text with an edit summary.
package mediawiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	ncerr "gateslam/internal/errors"
)

const maxResponse = 16 << 20

// APIError is an error object returned by the API.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string { return fmt.Sprintf("mediawiki: %s: %s", e.Code, e.Info) }

// Client talks to one wiki's api.php.
type Client struct {
	API       string
	Token     string // optional OAuth bearer token
	UserAgent string
	http      *http.Client
}

// NewClient returns a client for the api.php endpoint at api.  The
// session cookie jar is shared by all requests so the CSRF token stays
// valid for the edit that follows it.
func NewClient(api, token string) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Client{
		API:       api,
		Token:     token,
		UserAgent: "gateslam/1.0 (relay egress registry)",
		http:      &http.Client{Jar: jar, Timeout: 60 * time.Second},
	}, nil
}

// PageContent returns the main-slot text of the latest revision of
// title.  exists is false when the page has not been created.
func (c *Client) PageContent(ctx context.Context, title string) (content string, exists bool, err error) {
	var resp struct {
		Query struct {
			Pages []struct {
				Title     string `json:"title"`
				Missing   bool   `json:"missing"`
				Invalid   bool   `json:"invalid"`
				Revisions []struct {
					Slots struct {
						Main struct {
							Content string `json:"content"`
						} `json:"main"`
					} `json:"slots"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	q := url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"titles":  {title},
		"rvprop":  {"content"},
		"rvslots": {"main"},
	}
	if err := c.call(ctx, http.MethodGet, q, &resp); err != nil {
		return "", false, err
	}

	if len(resp.Query.Pages) == 0 {
		return "", false, fmt.Errorf("mediawiki: no page in response for %q", title)
	}
	page := resp.Query.Pages[0]
	if page.Invalid {
		return "", false, fmt.Errorf("mediawiki: invalid title %q", title)
	}
	if page.Missing || len(page.Revisions) == 0 {
		return "", false, nil
	}
	return page.Revisions[0].Slots.Main.Content, true, nil
}

// CSRFToken fetches an edit token for the current session.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	var resp struct {
		Query struct {
			Tokens struct {
				CSRF string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	q := url.Values{"action": {"query"}, "meta": {"tokens"}, "type": {"csrf"}}
	if err := c.call(ctx, http.MethodGet, q, &resp); err != nil {
		return "", err
	}
	if resp.Query.Tokens.CSRF == "" {
		return "", fmt.Errorf("mediawiki: empty csrf token")
	}
	return resp.Query.Tokens.CSRF, nil
}

// Edit replaces the text of title, marking the edit as a bot edit.
func (c *Client) Edit(ctx context.Context, title, text, summary string) error {
	token, err := c.CSRFToken(ctx)
	if err != nil {
		return err
	}

	var resp struct {
		Edit struct {
			Result string `json:"result"`
		} `json:"edit"`
	}
	form := url.Values{
		"action":  {"edit"},
		"title":   {title},
		"text":    {text},
		"summary": {summary},
		"bot":     {"1"},
		"token":   {token},
	}
	if err := c.call(ctx, http.MethodPost, form, &resp); err != nil {
		return err
	}
	if resp.Edit.Result != "Success" {
		return fmt.Errorf("mediawiki: edit result %q", resp.Edit.Result)
	}
	return nil
}

// call performs one API request and decodes the JSON reply into out.
// Transport failures and non-2xx statuses are *errors.NetworkError; an
// "error" object in the reply is an *APIError.
func (c *Client) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")

	var (
		req *http.Request
		err error
	)
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, c.API, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.API+"?"+params.Encode(), nil)
	}
	if err != nil {
		return ncerr.Wrap("wiki", c.API, err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ncerr.Wrap("wiki", c.API, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ncerr.NetworkError{
			Op:        "wiki",
			Addr:      c.API,
			Err:       fmt.Errorf("HTTP %d", resp.StatusCode),
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return ncerr.Wrap("wiki", c.API, err)
	}

	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("mediawiki: decode response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("mediawiki: decode response: %w", err)
	}
	return nil
}
