package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mes-backend/internal/cache"
	"mes-backend/internal/mw"
	"mes-backend/internal/store"
)

// RouterDeps collects what NewRouter wires into the handlers.
type RouterDeps struct {
	Store    store.Store
	Importer Importer
	Notifier Notifier
	WebPush  *webpush.Options
	Cache    cache.Cache
	CacheTTL time.Duration
	Rate     rate.Limit
	Burst    int
	Log      *zap.Logger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(deps RouterDeps) *gin.Engine {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(mw.Logger(log), gin.Recovery())

	handler := NewHandler(deps.Store, deps.Importer, deps.Notifier, deps.WebPush, log)

	r.GET("/healthz", handler.Healthz)

	api := r.Group("/")
	if deps.Rate > 0 {
		api.Use(mw.RateLimiter(deps.Rate, deps.Burst))
	}
	if deps.Cache != nil {
		api.Use(mw.Cache(deps.Cache, deps.CacheTTL, log))
	}
	{
		api.GET("/machines", handler.ListMachines)
		api.POST("/machines", handler.CreateMachine)
		api.GET("/machines/:id", handler.GetMachine)
		api.DELETE("/machines/:id", handler.DeleteMachine)
		api.GET("/machines/:id/tool", handler.GetMachineTool)
		api.PUT("/machines/:id/tool", handler.AssignTool)
		api.GET("/machines/:id/dashboard/:metric", handler.GetMachineMetric)
		api.GET("/machines/:id/maintenance", handler.GetMachineMaintenance)

		api.POST("/maintenance", handler.CreateMaintenance)

		api.GET("/tools", handler.ListTools)

		api.GET("/users", handler.ListUsers)
		api.POST("/users", handler.CreateUser)
		api.POST("/user", handler.CreateUser)

		api.POST("/import-csv", handler.ImportCSV)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
