package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"overnight_bot/internal/journal"
	"overnight_bot/internal/modules/config"
	"overnight_bot/pkg/db"
	"overnight_bot/pkg/logger"
)

// Module поднимает пул и журнал сделок. Пустой DSN — журнал отключён,
// провайдеры отдают nil: бот обязан уметь работать без базы.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config) (*db.Manager, error) {
				if cfg.DB == "" {
					logger.Info("[PG] DSN пуст, журнал сделок отключён")
					return nil, nil
				}
				mgr, err := db.NewManager(context.Background(), cfg.DB)
				if err != nil {
					return nil, fmt.Errorf("db manager: %w", err)
				}
				lc.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						mgr.Close()
						return nil
					},
				})
				return mgr, nil
			},
			func(mgr *db.Manager, cfg *config.Config) (*journal.Journal, error) {
				if mgr == nil {
					return nil, nil
				}
				return journal.New(context.Background(), mgr, cfg.Symbol)
			},
		),
	)
}
