package controllers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/behavero/agencyos-sub001/app/repository"
	"github.com/behavero/agencyos-sub001/internal/pkg/revenue"
	"github.com/behavero/agencyos-sub001/internal/pkg/syncengine"
	"github.com/behavero/agencyos-sub001/internal/pkg/tokenmanager"
)

var (
	syncEngine *syncengine.Engine
	syncRepos  *repository.Repositories
)

// InitSyncController injects the sync engine and repositories used by the
// sync/revenue handlers. Called once during application startup.
func InitSyncController(engine *syncengine.Engine, repos *repository.Repositories) {
	syncEngine = engine
	syncRepos = repos
}

// revenueQuery is the validated query surface of the tenant revenue route.
type revenueQuery struct {
	From string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `query:"to" validate:"omitempty,datetime=2006-01-02"`
}

// HandleTenantSync triggers an incremental sync pass for every active
// creator of a tenant.
func HandleTenantSync(c *fiber.Ctx) error {
	tenantID, err := c.ParamsInt("id")
	if err != nil || tenantID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid tenant id"})
	}

	results, err := syncEngine.SyncTenant(c.UserContext(), uint(tenantID))
	if err != nil {
		return tokenErrorResponse(c, err)
	}

	synced, failed := 0, 0
	for _, r := range results {
		synced += r.Synced
		if !r.OK() {
			failed++
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"tenant_id": tenantID,
		"synced":    synced,
		"failed":    failed,
		"results":   results,
	})
}

// HandleCreatorSync triggers an incremental sync pass for a single creator.
func HandleCreatorSync(c *fiber.Ctx) error {
	creatorID, err := c.ParamsInt("id")
	if err != nil || creatorID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid creator id"})
	}

	result := syncEngine.SyncCreator(c.UserContext(), uint(creatorID))
	status := fiber.StatusOK
	if result.ErrorClass == syncengine.ErrorClassAuth {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(result)
}

// HandleCreatorImport pulls the upstream creator listing into local rows.
func HandleCreatorImport(c *fiber.Ctx) error {
	tenantID, err := c.ParamsInt("id")
	if err != nil || tenantID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid tenant id"})
	}

	imported, err := syncEngine.ImportCreators(c.UserContext(), uint(tenantID))
	if err != nil {
		return tokenErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"tenant_id": tenantID,
		"imported":  imported,
	})
}

// HandleCreatorRevenue returns the cached running total and a full-ledger
// summary for one creator.
func HandleCreatorRevenue(c *fiber.Ctx) error {
	creatorID, err := c.ParamsInt("id")
	if err != nil || creatorID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid creator id"})
	}

	if _, err := syncRepos.Creator.GetByID(uint(creatorID)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Creator not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load creator"})
	}

	summary, err := revenue.BuildCreatorSummary(syncRepos, uint(creatorID), time.Time{})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to build summary"})
	}

	// The running total is served from the redis cache when fresh.
	total, err := revenue.GetCreatorTotal(syncRepos, uint(creatorID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load revenue total"})
	}
	summary.TotalRevenue = total

	return c.Status(fiber.StatusOK).JSON(summary)
}

// HandleTenantRevenue returns the aggregated period summary for a tenant.
func HandleTenantRevenue(c *fiber.Ctx) error {
	tenantID, err := c.ParamsInt("id")
	if err != nil || tenantID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid tenant id"})
	}

	var q revenueQuery
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid query parameters"})
	}
	if err := validator.New().Struct(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Dates must be YYYY-MM-DD"})
	}

	now := time.Now().UTC()
	from := now.AddDate(0, -1, 0)
	to := now
	if q.From != "" {
		from, _ = time.Parse("2006-01-02", q.From)
	}
	if q.To != "" {
		to, _ = time.Parse("2006-01-02", q.To)
	}

	summary, err := revenue.BuildTenantSummary(syncRepos, uint(tenantID), from, to)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to build summary"})
	}

	return c.Status(fiber.StatusOK).JSON(summary)
}

// tokenErrorResponse maps token lifecycle failures to actionable responses.
func tokenErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, tokenmanager.ErrNoConnection):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_connection", "message": "No platform connection on file; reconnect required"})
	case errors.Is(err, tokenmanager.ErrAuthExpired):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "auth_expired", "message": "Platform connection expired; reconnect required"})
	default:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_failure", "message": err.Error()})
	}
}
