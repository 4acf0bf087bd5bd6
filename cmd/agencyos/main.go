package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/behavero/agencyos-sub001/app/controllers"
	"github.com/behavero/agencyos-sub001/app/repository"
	"github.com/behavero/agencyos-sub001/internal/pkg/cache"
	"github.com/behavero/agencyos-sub001/internal/pkg/database"
	"github.com/behavero/agencyos-sub001/internal/pkg/env"
	"github.com/behavero/agencyos-sub001/internal/pkg/platform"
	"github.com/behavero/agencyos-sub001/internal/pkg/router"
	"github.com/behavero/agencyos-sub001/internal/pkg/scheduler"
	"github.com/behavero/agencyos-sub001/internal/pkg/syncengine"
	"github.com/behavero/agencyos-sub001/internal/pkg/tokenmanager"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	client := platform.NewClientFromEnv()
	tokens := tokenmanager.NewManager(repos.Credential, client, tokenmanager.NewTokenCache(tokenmanager.DefaultCacheTTL))
	engine := syncengine.NewEngine(repos, tokens, client)
	controllers.InitSyncController(engine, repos)

	sched := scheduler.SetupManager(engine, repos.Credential)
	sched.Start()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "agencyos-sync",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	app.Hooks().OnShutdown(func() error {
		sched.Stop()
		return nil
	})

	return app
}
