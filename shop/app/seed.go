package app

import (
	"context"
	"log/slog"

	"github.com/m3rciful/cardshop/core/bootstrap"
	"github.com/m3rciful/cardshop/core/logger"
	"github.com/m3rciful/cardshop/shop/model"
	"github.com/m3rciful/cardshop/shop/store/memory"
)

// catalogWriter is implemented by stores that accept catalog seeds.
type catalogWriter interface {
	UpsertCategory(ctx context.Context, c model.Category) error
	AddInventory(ctx context.Context, categoryID string, payloads ...string) error
}

type memoryCatalog struct {
	s *memory.Store
}

func (m memoryCatalog) UpsertCategory(_ context.Context, c model.Category) error {
	m.s.AddCategory(c)
	return nil
}

func (m memoryCatalog) AddInventory(_ context.Context, categoryID string, payloads ...string) error {
	m.s.AddInventory(categoryID, payloads...)
	return nil
}

// catalogSeeder writes the configured categories and their codes.
func catalogSeeder(w catalogWriter, seeds []CategorySeed) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context) error {
		codes := 0
		for _, seed := range seeds {
			c, err := seed.Category()
			if err != nil {
				return err
			}
			if err := w.UpsertCategory(ctx, c); err != nil {
				return err
			}
			if len(seed.Codes) > 0 {
				if err := w.AddInventory(ctx, c.ID, seed.Codes...); err != nil {
					return err
				}
				codes += len(seed.Codes)
			}
		}
		logger.LogEvent(ctx, logger.DB, slog.LevelInfo, "catalog.seeded",
			slog.String("status", "ok"),
			slog.Int("count", len(seeds)),
			slog.Int("codes", codes),
		)
		return nil
	})
}
