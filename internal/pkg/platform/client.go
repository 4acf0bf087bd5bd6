package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/behavero/agencyos-sub001/internal/pkg/env"
)

const (
	defaultAPIBaseURL = "https://api.creatorplatform.com/v2"
	defaultTokenURL   = "https://api.creatorplatform.com/oauth/token"
	defaultAPIVersion = "2024-06"
)

// Client is a stateless wrapper around the upstream creator platform API.
// It carries no retry logic; retry policy belongs to the callers, which
// classify failures through APIError.
type Client struct {
	ClientID     string
	ClientSecret string

	APIBaseURL string
	TokenURL   string
	APIVersion string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from environment configuration.
func NewClientFromEnv() *Client {
	return &Client{
		ClientID:     strings.TrimSpace(env.GetEnv("PLATFORM_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("PLATFORM_CLIENT_SECRET", "")),
		APIBaseURL:   strings.TrimSpace(env.GetEnv("PLATFORM_API_BASE_URL", defaultAPIBaseURL)),
		TokenURL:     strings.TrimSpace(env.GetEnv("PLATFORM_TOKEN_URL", defaultTokenURL)),
		APIVersion:   strings.TrimSpace(env.GetEnv("PLATFORM_API_VERSION", defaultAPIVersion)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// RefreshAccessToken exchanges a refresh token for a fresh token pair.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return nil, errors.New("PLATFORM_CLIENT_ID/PLATFORM_CLIENT_SECRET are not configured")
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.New("refresh token is required")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", strings.TrimSpace(refreshToken))
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Version", c.APIVersion)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out TokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, errors.New("token refresh returned empty access_token")
	}
	return &out, nil
}

// ListCreators fetches one page of the managed creator listing.
func (c *Client) ListCreators(ctx context.Context, accessToken string, page int) (*CreatorPage, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))

	var out CreatorPage
	if err := c.getJSON(ctx, accessToken, "/creators", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEarnings fetches one page of a creator's earnings since the given
// date. Pagination is driven by the opaque cursor returned with each page;
// pass an empty cursor for the first page.
func (c *Client) ListEarnings(ctx context.Context, accessToken, creatorExtID string, since time.Time, cursor string) (*EarningsPage, error) {
	if strings.TrimSpace(creatorExtID) == "" {
		return nil, errors.New("creator id is required")
	}
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var out EarningsPage
	path := fmt.Sprintf("/creators/%s/earnings", url.PathEscape(creatorExtID))
	if err := c.getJSON(ctx, accessToken, path, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, accessToken, path string, query url.Values, out interface{}) error {
	token := strings.TrimSpace(accessToken)
	if token == "" {
		return errors.New("access token is required")
	}

	u, err := url.Parse(strings.TrimRight(c.APIBaseURL, "/") + path)
	if err != nil {
		return err
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Version", c.APIVersion)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return json.Unmarshal(body, out)
}
