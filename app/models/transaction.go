package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	TransactionTypeSubscription = "subscription"
	TransactionTypeTip          = "tip"
	TransactionTypePPV          = "ppv"
	TransactionTypeMessage      = "message"
	TransactionTypePost         = "post"
	TransactionTypeStream       = "stream"
	TransactionTypeOther        = "other"
)

// Transaction is one normalized earning record pulled from the upstream
// platform. Rows are immutable once written except for net/fee recomputation
// when the same dedupe key is re-synced. The unique dedupe key makes repeated
// upserts of the same upstream record idempotent.
type Transaction struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	DedupeKey      string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_transactions_dedupe_key" json:"dedupe_key"`
	TenantID       uint      `gorm:"not null;index" json:"tenant_id"`
	CreatorID      uint      `gorm:"not null;index:idx_transactions_creator_occurred,priority:1" json:"creator_id"`
	Type           string    `gorm:"type:varchar(20);not null;default:'other';index" json:"type" validate:"oneof=subscription tip ppv message post stream other"`
	GrossAmount    float64   `gorm:"type:decimal(12,2);not null" json:"gross_amount" validate:"gte=0"`
	NetAmount      float64   `gorm:"type:decimal(12,2);not null" json:"net_amount" validate:"gte=0"`
	PlatformFee    float64   `gorm:"type:decimal(12,2);not null" json:"platform_fee" validate:"gte=0"`
	Currency       string    `gorm:"type:varchar(3);not null;default:'USD'" json:"currency" validate:"required,len=3"`
	CounterpartyID string    `gorm:"type:varchar(191);not null;default:''" json:"counterparty_id"`
	OccurredAt     time.Time `gorm:"type:timestamp;not null;index:idx_transactions_creator_occurred,priority:2" json:"occurred_at"`
	SyncedAt       time.Time `gorm:"type:timestamp;not null" json:"synced_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Validate checks the normalized transaction before it is written.
func (t *Transaction) Validate() error {
	v := validator.New()
	return v.Struct(t)
}
