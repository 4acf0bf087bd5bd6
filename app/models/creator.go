package models

import "time"

// Creator is one managed account on the upstream platform. LastSyncedAt is
// the incremental-sync watermark: it marks the end of the last fully synced
// window and only ever moves forward. TotalRevenue is a materialized
// convenience for display reads, recomputed after each successful sync pass.
type Creator struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	TenantID     uint       `gorm:"not null;index;uniqueIndex:ux_creators_tenant_external,priority:1" json:"tenant_id"`
	ExternalID   string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_creators_tenant_external,priority:2" json:"external_id"`
	Username     string     `gorm:"type:varchar(150);not null;default:''" json:"username"`
	DisplayName  string     `gorm:"type:varchar(200);not null;default:''" json:"display_name"`
	Active       bool       `gorm:"not null;default:true;index" json:"active"`
	LastSyncedAt *time.Time `gorm:"type:timestamp;default:null" json:"last_synced_at,omitempty"`
	TotalRevenue float64    `gorm:"type:decimal(14,2);not null;default:0" json:"total_revenue"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
