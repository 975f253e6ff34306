// Package store caches decoded reference tables.
package store

import (
	"context"
	"fmt"

	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/schedina"
	"alloggiati/pkg/platform/sentinel"
)

// ErrNotFound is returned when a table is not cached or has expired.
var ErrNotFound = fmt.Errorf("table %w", sentinel.ErrNotFound)

// Cache holds decoded rows per table. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, table models.TableType) ([]schedina.KeyValue, error)
	Set(ctx context.Context, table models.TableType, rows []schedina.KeyValue) error
}
