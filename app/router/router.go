package router

import (
	"crawlfleet/app/handler"
	"crawlfleet/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	fleetHandler *handler.FleetHandler
	apiKey       string
}

// NewRouter creates a new Router
func NewRouter(fleetHandler *handler.FleetHandler, apiKey string) *Router {
	return &Router{
		fleetHandler: fleetHandler,
		apiKey:       apiKey,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	engine.GET("/health", r.fleetHandler.Health)

	// V1 API - read-only fleet view
	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware(r.apiKey))
	{
		v1.GET("/fleet", r.fleetHandler.GetFleet)
		v1.GET("/fleet/:name", r.fleetHandler.GetWorker)
	}
}
