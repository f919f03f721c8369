package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	"overnight_bot/internal/modules/config"
	"overnight_bot/internal/modules/health"
	"overnight_bot/internal/modules/postgres"
	"overnight_bot/internal/runner"
	"overnight_bot/pkg/logger"
	"overnight_bot/pkg/tracing"
)

func main() {
	logger.Init()
	logger.SetServiceName("overnight_bot")
	defer logger.Sync()

	tracing.SetServiceName("overnight_bot")

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		health.Module(),
		runner.Module(),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) {
			if cfg.JaegerHost == "" {
				return
			}
			_, closer, err := tracing.InitTracer(tracing.Config{Host: cfg.JaegerHost, Port: 6831})
			if err != nil {
				logger.Warn("[MAIN] jaeger недоступен: %v", err)
				return
			}
			lc.Append(fx.Hook{OnStop: func(context.Context) error {
				closer()
				return nil
			}})
		}),
	)
	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}
	<-app.Done()
	if err := app.Stop(context.Background()); err != nil {
		log.Fatal(err)
	}
}
