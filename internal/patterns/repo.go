package patterns

import (
	"context"

	"github.com/aegismesh/aegis-meta/internal/models"
)

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, patterns []models.ActionPattern) error

// StorePatterns implements Store.
func (f StoreFunc) StorePatterns(ctx context.Context, patterns []models.ActionPattern) error {
	return f(ctx, patterns)
}
