package repository

import (
	"time"

	"github.com/behavero/agencyos-sub001/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// transactionRepository implements the TransactionRepository interface
type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

// UpsertBatch writes normalized transactions keyed on dedupe_key. Conflicts
// only recompute the derived money columns and the sync timestamp; the
// identifying columns of an existing row are never rewritten, which keeps
// repeated syncs of the same window idempotent.
func (r *transactionRepository) UpsertBatch(transactions []models.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "dedupe_key"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"net_amount",
			"platform_fee",
			"synced_at",
		}),
	}).Create(&transactions).Error
}

// GetByDedupeKey retrieves a transaction by its dedupe key
func (r *transactionRepository) GetByDedupeKey(key string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.Where("dedupe_key = ?", key).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListByCreatorSince retrieves a page of transactions for a creator
func (r *transactionRepository) ListByCreatorSince(creatorID uint, since time.Time, offset, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where("creator_id = ? AND occurred_at >= ?", creatorID, since).
		Order("occurred_at ASC, id ASC").
		Offset(offset).Limit(limit).
		Find(&txs).Error
	return txs, err
}

// ListByTenantBetween retrieves a page of transactions for a tenant and period
func (r *transactionRepository) ListByTenantBetween(tenantID uint, from, to time.Time, offset, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.Where("tenant_id = ? AND occurred_at >= ? AND occurred_at < ?", tenantID, from, to).
		Order("occurred_at ASC, id ASC").
		Offset(offset).Limit(limit).
		Find(&txs).Error
	return txs, err
}

// SumNetByCreator aggregates net revenue over the full ledger of a creator
func (r *transactionRepository) SumNetByCreator(creatorID uint) (float64, error) {
	var total float64
	err := r.db.Model(&models.Transaction{}).
		Where("creator_id = ?", creatorID).
		Select("COALESCE(SUM(net_amount), 0)").
		Scan(&total).Error
	return total, err
}

// SumNetByTenant aggregates net revenue over the full ledger of a tenant
func (r *transactionRepository) SumNetByTenant(tenantID uint) (float64, error) {
	var total float64
	err := r.db.Model(&models.Transaction{}).
		Where("tenant_id = ?", tenantID).
		Select("COALESCE(SUM(net_amount), 0)").
		Scan(&total).Error
	return total, err
}

// CountByCreator returns the number of stored transactions for a creator
func (r *transactionRepository) CountByCreator(creatorID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Transaction{}).
		Where("creator_id = ?", creatorID).
		Count(&count).Error
	return count, err
}
