package runner

import (
	"context"

	"go.uber.org/fx"

	"overnight_bot/internal/exchange"
	"overnight_bot/internal/journal"
	"overnight_bot/internal/modules/config"
	"overnight_bot/internal/modules/health/service"
	"overnight_bot/internal/notify"
	"overnight_bot/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(cfg *config.Config) *exchange.Client {
				return exchange.NewClient(exchange.Creds{
					APIKey:     cfg.Exchange.APIKey,
					APISecret:  cfg.Exchange.APISecret,
					Passphrase: cfg.Exchange.Passphrase,
				})
			},
			New, // *Runner
			func(cfg *config.Config) notify.Notifier {
				if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
					logger.Info("[RUNNER] telegram не настроен, уведомления в stdout")
					return notify.NewStdout()
				}
				tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
				if err != nil {
					logger.Warn("[RUNNER] telegram недоступен: %v", err)
					return notify.NewStdout()
				}
				return tg
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			r *Runner,
			n notify.Notifier,
			cfg *config.Config,
			client *exchange.Client,
			_ *journal.Journal,
			_ *service.Metrics,
		) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if tg, ok := n.(*notify.Telegram); ok {
						tg.SetStatus(r.Status)
						if err := tg.Start(context.Background()); err != nil {
							return err
						}
					}
					go client.StreamTicker(context.Background(), cfg.Symbol)
					return r.Start(context.Background())
				},
				OnStop: func(ctx context.Context) error {
					return r.Stop(ctx)
				},
			})
		}),
	)
}
