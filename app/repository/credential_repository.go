package repository

import (
	"time"

	"github.com/behavero/agencyos-sub001/app/models"
	"gorm.io/gorm"
)

// credentialRepository implements the CredentialRepository interface
type credentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository creates a new credential repository instance
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

// GetByTenantID retrieves the single credential row for a tenant
func (r *credentialRepository) GetByTenantID(tenantID uint) (*models.PlatformCredential, error) {
	var cred models.PlatformCredential
	err := r.db.Where("tenant_id = ?", tenantID).First(&cred).Error
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// Save persists the full credential row
func (r *credentialRepository) Save(cred *models.PlatformCredential) error {
	return r.db.Save(cred).Error
}

// AcquireRefreshLock attempts to take the refresh lease for a tenant. The
// write succeeds only when no lock is held or the held lock predates
// staleBefore, which makes it safe against concurrent invocations: of N
// simultaneous callers exactly one sees RowsAffected > 0.
func (r *credentialRepository) AcquireRefreshLock(tenantID uint, now, staleBefore time.Time) (bool, error) {
	tx := r.db.Model(&models.PlatformCredential{}).
		Where("tenant_id = ? AND (lock_acquired_at IS NULL OR lock_acquired_at < ?)", tenantID, staleBefore).
		Update("lock_acquired_at", now)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ReleaseLock clears the refresh lease without touching any other field
func (r *credentialRepository) ReleaseLock(tenantID uint) error {
	return r.db.Model(&models.PlatformCredential{}).
		Where("tenant_id = ?", tenantID).
		Update("lock_acquired_at", nil).Error
}

// SaveRefreshedToken persists a successful refresh: new token pair, new
// expiry, active status and a cleared lock in one update.
func (r *credentialRepository) SaveRefreshedToken(tenantID uint, accessToken, refreshToken string, expiresAt time.Time) error {
	updates := map[string]interface{}{
		"access_token":     accessToken,
		"refresh_token":    refreshToken,
		"expires_at":       expiresAt,
		"status":           models.CredentialStatusActive,
		"lock_acquired_at": nil,
	}
	return r.db.Model(&models.PlatformCredential{}).
		Where("tenant_id = ?", tenantID).
		Updates(updates).Error
}

// MarkExpired flags the credential after a confirmed permanent auth failure
func (r *credentialRepository) MarkExpired(tenantID uint) error {
	updates := map[string]interface{}{
		"status":           models.CredentialStatusExpired,
		"lock_acquired_at": nil,
	}
	return r.db.Model(&models.PlatformCredential{}).
		Where("tenant_id = ?", tenantID).
		Updates(updates).Error
}

// MarkRevoked flags the credential after an explicit disconnect (terminal)
func (r *credentialRepository) MarkRevoked(tenantID uint) error {
	updates := map[string]interface{}{
		"status":           models.CredentialStatusRevoked,
		"lock_acquired_at": nil,
	}
	return r.db.Model(&models.PlatformCredential{}).
		Where("tenant_id = ?", tenantID).
		Updates(updates).Error
}

// ListTenantIDsWithActiveCredential returns tenants eligible for scheduled syncs
func (r *credentialRepository) ListTenantIDsWithActiveCredential() ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.PlatformCredential{}).
		Where("status = ?", models.CredentialStatusActive).
		Pluck("tenant_id", &ids).Error
	return ids, err
}
