// Package redis implements ports.Store using Redis. Series and snapshot
// payloads are codec-encoded and zstd-compressed before they hit the wire.
package redis

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/hydrosight/tsexpr/internal/adapters/blob"
	"github.com/hydrosight/tsexpr/pkg/codec"
	"github.com/hydrosight/tsexpr/pkg/domain"
	"github.com/hydrosight/tsexpr/pkg/ports"
)

// Store implements ports.Store using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for stored entries.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "tsexpr:",
		ttl:    0, // No expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) seriesKey(id string) string {
	return s.prefix + "series:" + id
}

func (s *Store) stateKey(name string) string {
	return s.prefix + "state:" + name
}

// SaveSeries persists the series under id.
func (s *Store) SaveSeries(ctx context.Context, id string, series domain.Series) error {
	payload := blob.Compress(codec.EncodeSeries(series))
	if err := s.client.Set(ctx, s.seriesKey(id), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save series %q: %w", id, err)
	}
	return nil
}

// LoadSeries retrieves the series stored under id.
// Returns ports.ErrNotFound if the identifier has no entry.
func (s *Store) LoadSeries(ctx context.Context, id string) (domain.Series, error) {
	raw, err := s.client.Get(ctx, s.seriesKey(id)).Bytes()
	if err != nil {
		if err == backend.Nil {
			return domain.Series{}, fmt.Errorf("series %q: %w", id, ports.ErrNotFound)
		}
		return domain.Series{}, fmt.Errorf("load series %q: %w", id, err)
	}
	data, err := blob.Decompress(raw)
	if err != nil {
		return domain.Series{}, fmt.Errorf("series %q: %w", id, err)
	}
	return codec.DecodeSeries(data)
}

// DeleteSeries removes the entry for id.
func (s *Store) DeleteSeries(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.seriesKey(id)).Err()
}

// SaveState persists the snapshot bundle under name.
func (s *Store) SaveState(ctx context.Context, name string, b domain.StateBundle) error {
	payload := blob.Compress(codec.EncodeStateBundle(b))
	if err := s.client.Set(ctx, s.stateKey(name), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save state %q: %w", name, err)
	}
	return nil
}

// LoadState retrieves the snapshot bundle stored under name.
// Returns ports.ErrNotFound if the name has no entry.
func (s *Store) LoadState(ctx context.Context, name string) (domain.StateBundle, error) {
	raw, err := s.client.Get(ctx, s.stateKey(name)).Bytes()
	if err != nil {
		if err == backend.Nil {
			return domain.StateBundle{}, fmt.Errorf("state %q: %w", name, ports.ErrNotFound)
		}
		return domain.StateBundle{}, fmt.Errorf("load state %q: %w", name, err)
	}
	data, err := blob.Decompress(raw)
	if err != nil {
		return domain.StateBundle{}, fmt.Errorf("state %q: %w", name, err)
	}
	return codec.DecodeStateBundle(data)
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
