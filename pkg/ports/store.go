package ports

import (
	"context"
	"errors"

	"github.com/hydrosight/tsexpr/pkg/domain"
)

// ErrNotFound is returned by stores when an identifier has no entry.
var ErrNotFound = errors.New("not found")

// SeriesStore persists point series by symbolic identifier. It backs the
// store-based resolver of the standalone daemon.
type SeriesStore interface {
	// SaveSeries persists the series under id, replacing any previous entry.
	SaveSeries(ctx context.Context, id string, s domain.Series) error

	// LoadSeries retrieves the series stored under id.
	// Returns ErrNotFound if the identifier has no entry.
	LoadSeries(ctx context.Context, id string) (domain.Series, error)

	// DeleteSeries removes the entry for id.
	DeleteSeries(ctx context.Context, id string) error
}

// StateStore persists cell-state snapshot bundles by name.
type StateStore interface {
	// SaveState persists the bundle under name, replacing any previous entry.
	SaveState(ctx context.Context, name string, b domain.StateBundle) error

	// LoadState retrieves the bundle stored under name.
	// Returns ErrNotFound if the name has no entry.
	LoadState(ctx context.Context, name string) (domain.StateBundle, error)
}

// Store is the combined persistence surface the daemon wires up.
type Store interface {
	SeriesStore
	StateStore

	// Close releases the underlying backend.
	Close() error
}
