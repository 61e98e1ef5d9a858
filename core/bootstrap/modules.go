package bootstrap

import (
	"context"
	"fmt"
)

// Seeder loads data the application expects to exist before serving.
type Seeder interface {
	Seed(ctx context.Context) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc func(ctx context.Context) error

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context) error {
	return f(ctx)
}

// RunSeeders runs seeders in order and stops at the first failure.
func RunSeeders(ctx context.Context, seeders ...Seeder) error {
	for i, s := range seeders {
		if s == nil {
			continue
		}
		if err := s.Seed(ctx); err != nil {
			return fmt.Errorf("bootstrap: seeder %d: %w", i, err)
		}
	}
	return nil
}
