package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/logger"
)

// Seeder loads reference data once storage is ready.
type Seeder interface {
	Name() string
	Seed(ctx context.Context, res *Result) error
}

// SeederFunc adapts a named function to the Seeder interface.
type SeederFunc struct {
	Label string
	Fn    func(ctx context.Context, res *Result) error
}

func (f SeederFunc) Name() string { return f.Label }

func (f SeederFunc) Seed(ctx context.Context, res *Result) error {
	return f.Fn(ctx, res)
}

// Modules groups optional bootstrap hooks.
type Modules struct {
	Seeders []Seeder
}

func (m Modules) seed(ctx context.Context, res *Result) error {
	for _, s := range m.Seeders {
		if err := s.Seed(ctx, res); err != nil {
			logger.Error(ctx, logger.CompSeed, "seed", slog.String("seeder", s.Name()), slog.String("err", err.Error()))
			return fmt.Errorf("seeder %s: %w", s.Name(), err)
		}
		logger.Info(ctx, logger.CompSeed, "seed", slog.String("seeder", s.Name()), slog.String("status", "ok"))
	}
	return nil
}
