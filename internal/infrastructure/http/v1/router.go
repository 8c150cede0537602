// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"stokado/internal/domain/catalogs/item"
	"stokado/internal/domain/catalogs/location"
	"stokado/internal/domain/consolidation"
	"stokado/internal/domain/ledger"
	"stokado/internal/domain/workorder"
	"stokado/internal/infrastructure/http/v1/handlers"
	"stokado/internal/infrastructure/http/v1/middleware"
	"stokado/internal/infrastructure/storage/postgres"
	"stokado/internal/jobs"
	"stokado/pkg/logger"
)

// RouterConfig holds everything the HTTP layer depends on.
type RouterConfig struct {
	Pool   *postgres.Pool
	Redis  *redis.Client // nil disables the redis readiness check
	Logger *logger.Logger

	Items     *item.Service
	Locations *location.Service
	Ledger    *ledger.Service
	Issues    ledger.IssueStore
	Scanner   *consolidation.Scanner
	Engine    *consolidation.Engine
	Orders    workorder.Repository

	// Jobs enqueues background work. nil disables the repair and sweep
	// endpoints.
	Jobs *jobs.Client
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Actor())

	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.Redis)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	base := handlers.NewBaseHandler()

	v1 := router.Group("/api/v1")
	{
		itemHandler := handlers.NewItemHandler(base, cfg.Items, cfg.Ledger)
		items := v1.Group("/catalog/items")
		{
			items.POST("", itemHandler.Create)
			items.GET("", itemHandler.List)
			items.GET("/:id", itemHandler.Get)
			items.PUT("/:id", itemHandler.Update)
			items.DELETE("/:id", itemHandler.Delete)
		}

		locationHandler := handlers.NewLocationHandler(base, cfg.Locations)
		locations := v1.Group("/catalog/locations")
		{
			locations.POST("", locationHandler.Create)
			locations.GET("", locationHandler.List)
			locations.GET("/:id", locationHandler.Get)
			locations.PUT("/:id", locationHandler.Update)
			locations.POST("/:id/active", locationHandler.SetActive)
		}

		ledgerHandler := handlers.NewLedgerHandler(base, cfg.Ledger, cfg.Issues, cfg.Jobs)
		ledgerGroup := v1.Group("/ledger")
		{
			ledgerGroup.POST("/movements", ledgerHandler.Append)
			ledgerGroup.GET("/items/:id/movements", ledgerHandler.History)
			ledgerGroup.GET("/items/:id/balance", ledgerHandler.Balance)
			ledgerGroup.GET("/items/:id/total", ledgerHandler.TotalBalance)
			ledgerGroup.GET("/items/:id/location", ledgerHandler.AuthoritativeLocation)
			ledgerGroup.POST("/recalculate", ledgerHandler.Recalculate)
			ledgerGroup.POST("/repair", ledgerHandler.Repair)
			ledgerGroup.GET("/issues", ledgerHandler.ListIssues)
			ledgerGroup.POST("/issues/:id/resolve", ledgerHandler.ResolveIssue)
		}

		consolidationHandler := handlers.NewConsolidationHandler(base, cfg.Scanner, cfg.Engine)
		consolidationGroup := v1.Group("/consolidation")
		{
			consolidationGroup.GET("/candidates", consolidationHandler.Candidates)
			consolidationGroup.POST("", consolidationHandler.Consolidate)
		}

		orderHandler := handlers.NewWorkOrderHandler(base, cfg.Orders, cfg.Jobs)
		orders := v1.Group("/workorders")
		{
			orders.POST("", orderHandler.Create)
			orders.GET("", orderHandler.List)
			orders.GET("/:id", orderHandler.Get)
			orders.POST("/sweep", orderHandler.Sweep)
		}
	}

	return router
}
