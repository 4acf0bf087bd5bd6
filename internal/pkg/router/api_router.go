package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/behavero/agencyos-sub001/app/controllers"
	"github.com/behavero/agencyos-sub001/internal/pkg/constants"
	"github.com/behavero/agencyos-sub001/internal/pkg/env"
	"github.com/behavero/agencyos-sub001/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}

	// Rate limiting is shared across instances via Redis; stateless
	// invocations cannot rely on in-process counters.
	store := redisstorage.New(redisstorage.Config{
		Host: env.GetEnv("CACHE_HOST", "localhost"),
		Port: port,
	})

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		Storage:    store,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes (service-key protected)
	v1 := api.Group("/v1", middleware.ServiceKeyAuthMiddleware())
	v1.Post(constants.APITenantSyncRoute, controllers.HandleTenantSync)
	v1.Post(constants.APICreatorSyncRoute, controllers.HandleCreatorSync)
	v1.Post(constants.APICreatorImportRoute, controllers.HandleCreatorImport)
	v1.Get(constants.APICreatorRevenueRoute, controllers.HandleCreatorRevenue)
	v1.Get(constants.APITenantRevenueRoute, controllers.HandleTenantRevenue)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
