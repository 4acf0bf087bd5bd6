package repository

import (
	"github.com/behavero/agencyos-sub001/app/models"
	"gorm.io/gorm"
)

// tenantRepository implements the TenantRepository interface
type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new tenant repository instance
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

// GetByID retrieves a tenant by its ID
func (r *tenantRepository) GetByID(id uint) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.First(&tenant, id).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// List retrieves tenants with pagination
func (r *tenantRepository) List(offset, limit int) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := r.db.Offset(offset).Limit(limit).Order("id ASC").Find(&tenants).Error
	return tenants, err
}

// ListActive retrieves all active tenants
func (r *tenantRepository) ListActive() ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := r.db.Where("status = ?", models.TenantStatusActive).Find(&tenants).Error
	return tenants, err
}

// Count returns the total number of tenants
func (r *tenantRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Tenant{}).Count(&count).Error
	return count, err
}
