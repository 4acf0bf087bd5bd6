package models

import "time"

const (
	TenantStatusActive   = "active"
	TenantStatusDisabled = "disabled"
)

// Tenant is an agency account. Each tenant owns one shared platform
// credential and any number of managed creators.
type Tenant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Status    string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status" validate:"oneof=active disabled"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
