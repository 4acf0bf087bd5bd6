package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(serverURL string) *Client {
	return &Client{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		APIBaseURL:   serverURL,
		TokenURL:     serverURL + "/oauth/token",
		APIVersion:   "2024-06",
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
	}
}

func TestRefreshAccessToken(t *testing.T) {
	var gotVersion, gotGrant string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.Header.Get("X-API-Version")
		_ = r.ParseForm()
		gotGrant = r.FormValue("grant_type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-at","refresh_token":"new-rt","expires_in":3600}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	resp, err := c.RefreshAccessToken(context.Background(), "old-rt")
	require.NoError(t, err)

	assert.Equal(t, "new-at", resp.AccessToken)
	assert.Equal(t, "new-rt", resp.RefreshToken)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "2024-06", gotVersion)
	assert.Equal(t, "refresh_token", gotGrant)
}

func TestRefreshAccessToken_EmptyToken(t *testing.T) {
	c := testClient("http://unused")
	_, err := c.RefreshAccessToken(context.Background(), "")
	assert.Error(t, err)
}

func TestListEarnings_QueryParams(t *testing.T) {
	var gotSince, gotCursor, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		gotCursor = r.URL.Query().Get("cursor")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":"e1","source":"tip","gross_cents":500,"net_cents":400,"currency":"USD","fan_id":"f1","created_at":"2025-03-01T10:00:00Z"}],"next_cursor":"abc"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	page, err := c.ListEarnings(context.Background(), "token-123", "cr_9", since, "prev-cursor")
	require.NoError(t, err)

	assert.Equal(t, "2025-01-01T00:00:00Z", gotSince)
	assert.Equal(t, "prev-cursor", gotCursor)
	assert.Equal(t, "Bearer token-123", gotAuth)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "e1", page.Items[0].ID)
	assert.Equal(t, int64(500), page.Items[0].GrossCents)
	assert.Equal(t, "abc", page.NextCursor)
}

func TestListCreators_Pagination(t *testing.T) {
	var gotPage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPage = r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":"cr_1","username":"alice","display_name":"Alice","active":true}],"has_more":false}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	page, err := c.ListCreators(context.Background(), "token-123", 3)
	require.NoError(t, err)

	assert.Equal(t, "3", gotPage)
	require.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantAuth    bool
		wantLimited bool
	}{
		{"bad request", 400, true, false},
		{"unauthorized", 401, true, false},
		{"forbidden", 403, true, false},
		{"rate limited", 429, false, true},
		{"server error", 500, false, false},
		{"bad gateway", 502, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			c := testClient(srv.URL)
			_, err := c.ListEarnings(context.Background(), "token", "cr_1", time.Now(), "")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantAuth, apiErr.IsAuth())
			assert.Equal(t, tt.wantLimited, apiErr.IsRateLimited())
			assert.Equal(t, tt.wantAuth, IsAuthError(err))
			assert.Equal(t, tt.wantLimited, IsRateLimitError(err))
		})
	}
}

func TestAPIError_NotAuthForPlainError(t *testing.T) {
	assert.False(t, IsAuthError(errors.New("connection refused")))
	assert.False(t, IsRateLimitError(nil))
}
