package main

import (
	"context"
	"fmt"

	"github.com/abhishek622/evalengine/internal/auth"
	"github.com/abhishek622/evalengine/internal/cache"
	"github.com/abhishek622/evalengine/internal/config"
	"github.com/abhishek622/evalengine/internal/database"
	"github.com/abhishek622/evalengine/internal/diagnostics"
	"github.com/abhishek622/evalengine/internal/evaluation"
	"github.com/abhishek622/evalengine/internal/handler"
	"github.com/abhishek622/evalengine/internal/logger"
	"github.com/abhishek622/evalengine/internal/repository"
	"github.com/abhishek622/evalengine/internal/repository/sqlite"
	"github.com/abhishek622/evalengine/internal/scorer"
	"github.com/abhishek622/evalengine/internal/session"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

type application struct {
	Logger  *zap.Logger
	Config  *config.Config
	Handler *handler.Handler
}

func main() {
	ctx := context.Background()
	cfg := config.MustLoad()

	log, err := logger.NewLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	sugar := log.Sugar()
	sugar.Infof("config loaded: %s", cfg)

	store, closeStore, err := openStore(ctx, cfg.DB)
	if err != nil {
		sugar.Fatal(err)
	}
	defer closeStore()

	var reportCache diagnostics.Cache
	if cfg.Redis.Addr != "" {
		rdb := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		if err := cache.Ping(ctx, rdb); err != nil {
			sugar.Warnw("redis unavailable, diagnostics cache disabled", "addr", cfg.Redis.Addr, "err", err)
		} else {
			reportCache = cache.NewReportCache(rdb, cfg.Redis.TTL)
		}
	}

	h := &handler.Handler{
		Logger:      log,
		Evaluations: evaluation.NewService(store, log, cfg.DB.Timeout),
		Sessions:    session.NewService(store, log, cfg.DB.Timeout, cfg.Session.ProgressBaseline),
		Diagnostics: diagnostics.NewService(store, reportCache, log, cfg.DB.Timeout),
		TokenMaker:  auth.NewJWTMaker(cfg.JWT.Secret),
	}
	if cfg.Scorer.APIKey != "" {
		client, err := scorer.NewClient(cfg.Scorer.Provider, cfg.Scorer.APIKey, cfg.Scorer.Model, cfg.Scorer.Timeout)
		if err != nil {
			sugar.Fatal(err)
		}
		h.Scorer = client
	} else {
		sugar.Warn("SCORER_API_KEY not set, answer submission disabled")
	}

	app := &application{
		Logger:  log,
		Config:  cfg,
		Handler: h,
	}

	if err := app.serve(); err != nil {
		sugar.Fatal(err)
	}
}

// openStore connects the configured record store and applies its schema.
func openStore(ctx context.Context, cfg config.DBConfig) (repository.Transactor, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repository.NewRepository(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
