// Package main loads a JSON fixture of applications, questions and
// evaluations into the configured record store for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/abhishek622/evalengine/internal/auth"
	"github.com/abhishek622/evalengine/internal/config"
	"github.com/abhishek622/evalengine/internal/database"
	"github.com/abhishek622/evalengine/internal/logger"
	"github.com/abhishek622/evalengine/internal/repository"
	"github.com/abhishek622/evalengine/internal/repository/sqlite"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

func main() {
	var (
		fixturePath string
		tokenUser   string
		admin       bool
	)
	flag.StringVar(&fixturePath, "fixture", "cmd/seed/testdata/demo.json", "fixture file to load")
	flag.StringVar(&tokenUser, "token-for", "", "print a 24h bearer token for this user id after seeding")
	flag.BoolVar(&admin, "admin", false, "issue the token with admin rights")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.NewLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(context.Background(), cfg, log, fixturePath); err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}

	if tokenUser != "" {
		token, _, err := auth.NewJWTMaker(cfg.JWT.Secret).CreateToken(tokenUser, "", admin, 24*time.Hour)
		if err != nil {
			log.Fatal("issue token", zap.Error(err))
		}
		fmt.Println(token)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, fixturePath string) error {
	file, err := os.Open(fixturePath)
	if err != nil {
		return fmt.Errorf("open fixture: %w", err)
	}
	defer file.Close()

	fixture, err := LoadFixture(file)
	if err != nil {
		return err
	}

	seeder, closeFn, err := openSeeder(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := Apply(ctx, seeder, fixture, time.Now().UTC())
	if err != nil {
		return err
	}
	log.Info("seed: fixture loaded",
		zap.String("fixture", fixturePath),
		zap.Int64s("applications", res.Applications),
		zap.Int("questions", res.Questions),
		zap.Int("evaluations", res.Evaluations),
	)
	return nil
}

func openSeeder(ctx context.Context, cfg config.DBConfig) (repository.Seeder, func(), error) {
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
