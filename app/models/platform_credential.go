package models

import "time"

const (
	CredentialStatusActive  = "active"
	CredentialStatusExpired = "expired"
	CredentialStatusRevoked = "revoked"
)

// PlatformCredential stores the single shared OAuth credential a tenant holds
// for the upstream platform. At most one row exists per tenant.
//
// LockAcquiredAt doubles as a cross-invocation refresh mutex: a non-null
// value means a refresh is (or was) in flight. Locks older than the staleness
// window are treated as abandoned by the token manager.
type PlatformCredential struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	TenantID       uint       `gorm:"not null;uniqueIndex:ux_platform_credentials_tenant" json:"tenant_id"`
	AccessToken    string     `gorm:"type:text" json:"-"`
	RefreshToken   string     `gorm:"type:text" json:"-"`
	ExpiresAt      *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	Status         string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	LockAcquiredAt *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsUsable reports whether the stored access token can still be handed out,
// i.e. the credential is not revoked and has not passed its natural expiry.
func (c *PlatformCredential) IsUsable(now time.Time) bool {
	if c.Status == CredentialStatusRevoked || c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt != nil && c.ExpiresAt.After(now)
}
