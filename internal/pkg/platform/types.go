package platform

import "time"

// TokenResponse is the upstream answer to a refresh-token grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// RemoteCreator is one managed account as reported by the creator listing.
type RemoteCreator struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Active      bool   `json:"active"`
}

// CreatorPage is one page of the page-number paginated creator listing.
type CreatorPage struct {
	Items   []RemoteCreator `json:"items"`
	HasMore bool            `json:"has_more"`
}

// RawEarning is one earning record exactly as the upstream reports it:
// free-text source, integer minor units (cents), ISO-8601 timestamps.
type RawEarning struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	GrossCents int64     `json:"gross_cents"`
	NetCents   int64     `json:"net_cents"`
	Currency   string    `json:"currency"`
	FanID      string    `json:"fan_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// EarningsPage is one page of the cursor-paginated earnings listing. An
// empty NextCursor signals the final page.
type EarningsPage struct {
	Items      []RawEarning `json:"items"`
	NextCursor string       `json:"next_cursor"`
}
