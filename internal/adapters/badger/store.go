// Package badger implements ports.Store on an embedded Badger database, for
// single-host deployments that should not depend on a Redis instance.
package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/hydrosight/tsexpr/internal/adapters/blob"
	"github.com/hydrosight/tsexpr/pkg/codec"
	"github.com/hydrosight/tsexpr/pkg/domain"
	"github.com/hydrosight/tsexpr/pkg/ports"
)

// Store implements ports.Store using Badger.
type Store struct {
	db *badgerdb.DB
}

// Open opens (or creates) a store at path.
func Open(path string) (*Store, error) {
	opts := badgerdb.DefaultOptions(path)
	opts.Logger = nil
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an in-memory store; used in tests.
func OpenInMemory() (*Store, error) {
	opts := badgerdb.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger: %w", err)
	}
	return &Store{db: db}, nil
}

func seriesKey(id string) []byte {
	return []byte("series:" + id)
}

func stateKey(name string) []byte {
	return []byte("state:" + name)
}

func (s *Store) set(key, value []byte) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *Store) get(key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, ports.ErrNotFound
	}
	return out, err
}

// SaveSeries persists the series under id.
func (s *Store) SaveSeries(_ context.Context, id string, series domain.Series) error {
	if err := s.set(seriesKey(id), blob.Compress(codec.EncodeSeries(series))); err != nil {
		return fmt.Errorf("save series %q: %w", id, err)
	}
	return nil
}

// LoadSeries retrieves the series stored under id.
// Returns ports.ErrNotFound if the identifier has no entry.
func (s *Store) LoadSeries(_ context.Context, id string) (domain.Series, error) {
	raw, err := s.get(seriesKey(id))
	if err != nil {
		return domain.Series{}, fmt.Errorf("series %q: %w", id, err)
	}
	data, err := blob.Decompress(raw)
	if err != nil {
		return domain.Series{}, fmt.Errorf("series %q: %w", id, err)
	}
	return codec.DecodeSeries(data)
}

// DeleteSeries removes the entry for id.
func (s *Store) DeleteSeries(_ context.Context, id string) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(seriesKey(id))
	})
}

// SaveState persists the snapshot bundle under name.
func (s *Store) SaveState(_ context.Context, name string, b domain.StateBundle) error {
	if err := s.set(stateKey(name), blob.Compress(codec.EncodeStateBundle(b))); err != nil {
		return fmt.Errorf("save state %q: %w", name, err)
	}
	return nil
}

// LoadState retrieves the snapshot bundle stored under name.
// Returns ports.ErrNotFound if the name has no entry.
func (s *Store) LoadState(_ context.Context, name string) (domain.StateBundle, error) {
	raw, err := s.get(stateKey(name))
	if err != nil {
		return domain.StateBundle{}, fmt.Errorf("state %q: %w", name, err)
	}
	data, err := blob.Decompress(raw)
	if err != nil {
		return domain.StateBundle{}, fmt.Errorf("state %q: %w", name, err)
	}
	return codec.DecodeStateBundle(data)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
