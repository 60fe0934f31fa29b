package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"plant-store/internal/cart"
	"plant-store/internal/client"
	"plant-store/internal/config"
	"plant-store/internal/database"
	"plant-store/internal/logger"
	"plant-store/internal/storefront"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	flags := pflag.NewFlagSet("storefront", pflag.ExitOnError)
	flags.SetInterspersed(false)
	flags.StringVar(&cfg.Client.BaseURL, "api-url", cfg.Client.BaseURL, "plant store API base URL")
	flags.StringVar(&cfg.Client.Storage, "storage", cfg.Client.Storage, "cart storage: file, redis or memory")
	flags.StringVar(&cfg.Client.DataDir, "data-dir", cfg.Client.DataDir, "directory for file storage")
	flags.DurationVar(&cfg.Client.Timeout, "timeout", cfg.Client.Timeout, "HTTP request timeout")
	flags.Parse(os.Args[1:])

	log, err := logger.NewCLI(cfg.Client.LogEnv)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open cart storage", zap.Error(err), zap.String("storage", cfg.Client.Storage))
	}
	defer closeStorage()

	api := client.New(cfg.Client.BaseURL, cfg.Client.Timeout, log)
	app := storefront.New(ctx, api, storage, cfg.Client.Token, os.Stdout, log)

	if err := app.Run(ctx, flags.Args()); err != nil {
		if !errors.Is(err, storefront.ErrUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		closeStorage()
		log.Sync()
		os.Exit(1)
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (cart.Storage, func(), error) {
	switch cfg.Client.Storage {
	case "file":
		return cart.NewFileStorage(afero.NewOsFs(), cfg.Client.DataDir), func() {}, nil
	case "memory":
		return cart.NewMemoryStorage(), func() {}, nil
	case "redis":
		if !cfg.Redis.Enabled() {
			return nil, nil, errors.New("REDIS_HOST must be set for redis storage")
		}
		redisClient, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return cart.NewRedisStorage(redisClient, cfg.Client.KeyPrefix), func() { redisClient.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage %q", cfg.Client.Storage)
	}
}
