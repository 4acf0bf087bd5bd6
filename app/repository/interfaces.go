package repository

import (
	"time"

	"github.com/behavero/agencyos-sub001/app/models"
	"gorm.io/gorm"
)

// TenantRepository defines the interface for tenant-related database operations
type TenantRepository interface {
	GetByID(id uint) (*models.Tenant, error)
	List(offset, limit int) ([]models.Tenant, error)
	ListActive() ([]models.Tenant, error)
	Count() (int64, error)
}

// CredentialRepository defines the interface for platform credential operations.
// AcquireRefreshLock is the cross-invocation refresh mutex: a single
// conditional write that only succeeds when no live lock is held.
type CredentialRepository interface {
	GetByTenantID(tenantID uint) (*models.PlatformCredential, error)
	Save(cred *models.PlatformCredential) error
	AcquireRefreshLock(tenantID uint, now, staleBefore time.Time) (bool, error)
	ReleaseLock(tenantID uint) error
	SaveRefreshedToken(tenantID uint, accessToken, refreshToken string, expiresAt time.Time) error
	MarkExpired(tenantID uint) error
	MarkRevoked(tenantID uint) error
	ListTenantIDsWithActiveCredential() ([]uint, error)
}

// CreatorRepository defines the interface for creator-related database operations
type CreatorRepository interface {
	GetByID(id uint) (*models.Creator, error)
	GetByExternalID(tenantID uint, externalID string) (*models.Creator, error)
	ListByTenant(tenantID uint) ([]models.Creator, error)
	ListActiveByTenant(tenantID uint) ([]models.Creator, error)
	UpsertBatch(creators []models.Creator) error
	AdvanceWatermark(creatorID uint, t time.Time) error
	UpdateTotalRevenue(creatorID uint, total float64) error
	Count() (int64, error)
}

// TransactionRepository defines the interface for the transaction ledger
type TransactionRepository interface {
	UpsertBatch(transactions []models.Transaction) error
	GetByDedupeKey(key string) (*models.Transaction, error)
	ListByCreatorSince(creatorID uint, since time.Time, offset, limit int) ([]models.Transaction, error)
	ListByTenantBetween(tenantID uint, from, to time.Time, offset, limit int) ([]models.Transaction, error)
	SumNetByCreator(creatorID uint) (float64, error)
	SumNetByTenant(tenantID uint) (float64, error)
	CountByCreator(creatorID uint) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Tenant      TenantRepository
	Credential  CredentialRepository
	Creator     CreatorRepository
	Transaction TransactionRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Tenant:      NewTenantRepository(db),
		Credential:  NewCredentialRepository(db),
		Creator:     NewCreatorRepository(db),
		Transaction: NewTransactionRepository(db),
	}
}
