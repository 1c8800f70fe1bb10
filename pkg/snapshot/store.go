// Package snapshot persists the last known-good content per provider so a
// failed live fetch can degrade to cached content instead of dropping the
// provider from the run.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	logadapter "careers-scraper/pkg/log"
)

const (
	contentKeyPrefix = "content:"
	metaKeyPrefix    = "meta:"
	snapshotDBDir    = "snapshot_db"
)

// ErrNotFound is returned when no snapshot exists for a provider.
var ErrNotFound = errors.New("no snapshot for provider")

// Meta describes a stored snapshot.
type Meta struct {
	FetchedAt   time.Time `json:"fetched_at"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int       `json:"size_bytes"`
}

// Store is a badger-backed snapshot store keyed by provider id.
type Store struct {
	db  *badger.DB
	log *logrus.Entry
}

// Open initializes the store under dir, creating it if needed.
func Open(dir string, logger *logrus.Entry) (*Store, error) {
	dbPath := filepath.Join(dir, snapshotDBDir)
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create snapshot directory %s: %w", dbPath, err)
	}

	badgerLogger := logadapter.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database at %s: %w", dbPath, err)
	}
	logger.Infof("Snapshot database initialized at %s", dbPath)
	return &Store{db: db, log: logger}, nil
}

// Put stores content as the provider's snapshot, replacing any previous one.
func (s *Store) Put(providerID string, content []byte, fetchedAt time.Time) error {
	sum := sha256.Sum256(content)
	meta := Meta{
		FetchedAt:   fetchedAt,
		ContentHash: hex.EncodeToString(sum[:]),
		SizeBytes:   len(content),
	}
	metaBytes, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("marshal snapshot meta for %q: %w", providerID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(contentKeyPrefix+providerID), content); err != nil {
			return err
		}
		return txn.Set([]byte(metaKeyPrefix+providerID), metaBytes)
	})
	if err != nil {
		return fmt.Errorf("store snapshot for %q: %w", providerID, err)
	}
	s.log.WithFields(logrus.Fields{
		"provider": providerID, "size_bytes": meta.SizeBytes, "content_hash": meta.ContentHash,
	}).Debug("Snapshot stored")
	return nil
}

// Get returns the provider's snapshot content and metadata, or ErrNotFound.
func (s *Store) Get(providerID string) ([]byte, *Meta, error) {
	var content []byte
	var meta *Meta

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(contentKeyPrefix + providerID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		content, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}

		metaItem, err := txn.Get([]byte(metaKeyPrefix + providerID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil // content without meta is still usable
		}
		if err != nil {
			return err
		}
		return metaItem.Value(func(val []byte) error {
			var m Meta
			if jsonErr := json.Unmarshal(val, &m); jsonErr != nil {
				s.log.Warnf("Failed to unmarshal snapshot meta for %q: %v", providerID, jsonErr)
				return nil
			}
			meta = &m
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("load snapshot for %q: %w", providerID, err)
	}
	return content, meta, nil
}

// Close cleanly closes the database.
func (s *Store) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		return s.db.Close()
	}
	return nil
}
