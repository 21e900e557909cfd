// RepoPulse - GitHub CI and Issue Analytics Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/repopulse

// Package store provides the BadgerDB-backed key-value store used for
// all persisted state: the current CI snapshot, daily snapshots, the
// date index, the issue/PR mirror, and derived-view caches.
//
// Values are JSON-encoded. Expiration uses Badger's native entry TTL,
// so expired keys surface as ErrNotFound without explicit cleanup.
// The store is eventually consistent from the caller's perspective and
// offers no multi-key transactional guarantees to its users; callers
// recompute full state on every write rather than applying deltas, so
// racing writers degrade to wasted work, not corruption.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/repopulse/internal/logging"
	"github.com/tomtom215/repopulse/internal/metrics"
)

// Persisted key layout.
const (
	// KeyCIData holds the current CI snapshot (short TTL).
	KeyCIData = "ci-data"
	// KeyDailyPrefix prefixes one snapshot per calendar day (long TTL).
	KeyDailyPrefix = "daily:"
	// KeyDateIndex holds the sorted list of dates with daily snapshots.
	KeyDateIndex = "date-index"
	// KeyItems holds the issue/PR mirror (map number -> item).
	KeyItems = "github-items"
	// KeyItemsMeta holds the mirror's sync metadata.
	KeyItemsMeta = "github-items-meta"
	// KeyBusFactorCache holds the cached bus-factor report.
	KeyBusFactorCache = "bus-factor-cache"
)

// DailyKey returns the store key for one day's snapshot.
func DailyKey(date string) string {
	return KeyDailyPrefix + date
}

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("store: key not found")

// Store is a BadgerDB-backed JSON key-value store.
type Store struct {
	db *badger.DB
}

// Options configures Open.
type Options struct {
	// Path is the on-disk database directory. Ignored when InMemory.
	Path string
	// InMemory runs Badger without persistence. Used by tests.
	InMemory bool
}

// Open opens (creating if necessary) the store.
func Open(opts Options) (*Store, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	// Badger's default logger writes unstructured lines; route through
	// our zerolog wrapper instead.
	badgerOpts = badgerOpts.WithLogger(badgerLogger{})

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Path, err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetJSON reads the value at key into v. Returns ErrNotFound when the
// key is absent or its TTL has elapsed.
func (s *Store) GetJSON(key string, v interface{}) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err != nil {
		status := "error"
		if errors.Is(err, ErrNotFound) {
			status = "miss"
		}
		metrics.StoreOperations.WithLabelValues("get", status).Inc()
		return err
	}
	metrics.StoreOperations.WithLabelValues("get", "ok").Inc()
	return nil
}

// PutJSON writes v at key. A ttl of zero stores the value without
// expiration.
func (s *Store) PutJSON(key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		metrics.StoreOperations.WithLabelValues("put", "error").Inc()
		return fmt.Errorf("put %s: %w", key, err)
	}
	metrics.StoreOperations.WithLabelValues("put", "ok").Inc()
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		metrics.StoreOperations.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("delete %s: %w", key, err)
	}
	metrics.StoreOperations.WithLabelValues("delete", "ok").Inc()
	return nil
}

// Healthy reports whether the database is open and readable.
func (s *Store) Healthy() error {
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

// RunGC performs one value-log garbage collection pass. Badger returns
// ErrNoRewrite when nothing needed collecting; that is not an error.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// badgerLogger adapts Badger's internal logging to zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Msgf("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Msgf("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Msgf("badger: "+format, args...)
}
