package bootstrap

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/samber/do"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"mes-backend/config"
	"mes-backend/internal/api"
	"mes-backend/internal/cache"
	"mes-backend/internal/csvimport"
	"mes-backend/internal/db"
	"mes-backend/internal/logger"
	"mes-backend/internal/notification"
	"mes-backend/internal/store"
)

// BuildContainer registers every service of the process. Services are built
// lazily on first invoke, so the import command never touches the cache or
// the push workers.
func BuildContainer(configPath string) *do.Injector {
	inj := do.New()

	// config
	do.Provide(inj, func(i *do.Injector) (*config.Config, error) {
		return config.Load(configPath)
	})

	// logger
	do.Provide(inj, func(i *do.Injector) (*zap.Logger, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return logger.New(cfg.Log.Level)
	})

	// DB
	do.Provide(inj, func(i *do.Injector) (*gorm.DB, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		return db.Init(&cfg.Database, log)
	})

	do.Provide(inj, func(i *do.Injector) (store.Store, error) {
		return store.NewGormStore(do.MustInvoke[*gorm.DB](i)), nil
	})

	// response cache: shared Redis when configured, otherwise per process
	do.Provide(inj, func(i *do.Injector) (cache.Cache, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		if cfg.Redis.Addr == "" {
			log.Info("using in-memory response cache")
			return cache.NewMemory(cfg.Server.CacheTTL), nil
		}
		rdb, err := cache.NewRedisClient(context.Background(), &cfg.Redis)
		if err != nil {
			return nil, err
		}
		log.Info("using redis response cache", zap.String("addr", cfg.Redis.Addr))
		return cache.NewRedis(rdb), nil
	})

	do.Provide(inj, func(i *do.Injector) (*csvimport.Importer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return csvimport.NewImporter(
			do.MustInvoke[*gorm.DB](i),
			cfg.Import.CSVDir,
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	// web push; nil when no VAPID keys are configured
	do.Provide(inj, func(i *do.Injector) (*webpush.Options, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if !cfg.Push.Enabled() {
			do.MustInvoke[*zap.Logger](i).Warn("VAPID keys not configured, maintenance push notifications are disabled")
			return nil, nil
		}
		return &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}, nil
	})

	do.Provide(inj, func(i *do.Injector) (*notification.WorkerPool, error) {
		opts := do.MustInvoke[*webpush.Options](i)
		if opts == nil {
			return nil, nil
		}
		cfg := do.MustInvoke[*config.Config](i)
		return notification.NewWorkerPool(
			cfg.WorkerPool.Size,
			cfg.WorkerPool.QueueSize,
			do.MustInvoke[store.Store](i),
			opts,
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	// router
	do.Provide(inj, func(i *do.Injector) (*gin.Engine, error) {
		cfg := do.MustInvoke[*config.Config](i)
		deps := api.RouterDeps{
			Store:    do.MustInvoke[store.Store](i),
			Importer: do.MustInvoke[*csvimport.Importer](i),
			WebPush:  do.MustInvoke[*webpush.Options](i),
			Cache:    do.MustInvoke[cache.Cache](i),
			CacheTTL: cfg.Server.CacheTTL,
			Rate:     rate.Limit(cfg.Server.RateLimitPerSec),
			Burst:    cfg.Server.RateLimitBurst,
			Log:      do.MustInvoke[*zap.Logger](i),
		}
		// Leave the interface nil rather than holding a nil *WorkerPool.
		if pool := do.MustInvoke[*notification.WorkerPool](i); pool != nil {
			deps.Notifier = pool
		}
		return api.NewRouter(deps), nil
	})

	return inj
}
