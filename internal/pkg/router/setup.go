package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router installs a set of routes on the fiber app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires all route groups into the app.
func InstallRouter(app *fiber.App) {
	setup(app, NewHttpRouter(), NewApiRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
