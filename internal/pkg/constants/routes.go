package constants

// Static route constants
const (
	HealthRoute = "/healthz"

	APITenantSyncRoute     = "/tenants/:id/sync"
	APICreatorSyncRoute    = "/creators/:id/sync"
	APICreatorImportRoute  = "/tenants/:id/creators/import"
	APICreatorRevenueRoute = "/creators/:id/revenue"
	APITenantRevenueRoute  = "/tenants/:id/revenue"
)
