package api

import (
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/datallboy/gofichier/internal/api/controllers"
	"github.com/datallboy/gofichier/internal/app"
	"github.com/datallboy/gofichier/internal/downloader"
)

func RegisterRoutes(e *echo.Echo, app *app.Context, svc *downloader.Service) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	taskCtrl := &controllers.TaskController{Service: svc}
	settingsCtrl := &controllers.SettingsController{Service: svc}
	eventsCtrl := &controllers.EventsController{Service: svc}

	g := e.Group("/api")

	g.POST("/links", taskCtrl.AddLinks)
	g.GET("/tasks", taskCtrl.List)
	g.POST("/tasks/:id/:command", taskCtrl.Control)

	// Row-index addressing, as a table view sees it
	g.POST("/rows/control", taskCtrl.ControlRows)

	g.GET("/settings", settingsCtrl.Get)
	g.PUT("/settings", settingsCtrl.Put)

	g.GET("/events", eventsCtrl.Stream)
}
