package repository

import (
	"time"

	"github.com/behavero/agencyos-sub001/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// creatorRepository implements the CreatorRepository interface
type creatorRepository struct {
	db *gorm.DB
}

// NewCreatorRepository creates a new creator repository instance
func NewCreatorRepository(db *gorm.DB) CreatorRepository {
	return &creatorRepository{db: db}
}

// GetByID retrieves a creator by its ID
func (r *creatorRepository) GetByID(id uint) (*models.Creator, error) {
	var creator models.Creator
	err := r.db.First(&creator, id).Error
	if err != nil {
		return nil, err
	}
	return &creator, nil
}

// GetByExternalID retrieves a creator by its upstream identifier
func (r *creatorRepository) GetByExternalID(tenantID uint, externalID string) (*models.Creator, error) {
	var creator models.Creator
	err := r.db.Where("tenant_id = ? AND external_id = ?", tenantID, externalID).First(&creator).Error
	if err != nil {
		return nil, err
	}
	return &creator, nil
}

// ListByTenant retrieves all creators belonging to a tenant
func (r *creatorRepository) ListByTenant(tenantID uint) ([]models.Creator, error) {
	var creators []models.Creator
	err := r.db.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&creators).Error
	return creators, err
}

// ListActiveByTenant retrieves active creators belonging to a tenant
func (r *creatorRepository) ListActiveByTenant(tenantID uint) ([]models.Creator, error) {
	var creators []models.Creator
	err := r.db.Where("tenant_id = ? AND active = ?", tenantID, true).Order("id ASC").Find(&creators).Error
	return creators, err
}

// UpsertBatch inserts or updates creators keyed on (tenant_id, external_id).
// Sync state (watermark, revenue) is never overwritten by an import.
func (r *creatorRepository) UpsertBatch(creators []models.Creator) error {
	if len(creators) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"},
			{Name: "external_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"username",
			"display_name",
			"active",
			"updated_at",
		}),
	}).Create(&creators).Error
}

// AdvanceWatermark moves the sync watermark forward. The conditional update
// keeps the watermark monotonically non-decreasing even if passes race.
func (r *creatorRepository) AdvanceWatermark(creatorID uint, t time.Time) error {
	return r.db.Model(&models.Creator{}).
		Where("id = ? AND (last_synced_at IS NULL OR last_synced_at < ?)", creatorID, t).
		Update("last_synced_at", t).Error
}

// UpdateTotalRevenue persists the materialized running revenue total
func (r *creatorRepository) UpdateTotalRevenue(creatorID uint, total float64) error {
	return r.db.Model(&models.Creator{}).
		Where("id = ?", creatorID).
		Update("total_revenue", total).Error
}

// Count returns the total number of creators
func (r *creatorRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Creator{}).Count(&count).Error
	return count, err
}
