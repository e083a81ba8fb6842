// Package store persists exploration results in BadgerDB.
//
// Keys are laid out per run:
//
//	run/<id>/coverage       CoverageRecord
//	run/<id>/state/<n>      StateRecord, n zero padded so keys sort by state id
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: not found")

const runPrefix = "run/"

// Config holds the database configuration.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory. Used by tests.
	InMemory bool

	// SyncWrites syncs every write to disk.
	SyncWrites bool

	// Logger receives BadgerDB's internal log. Nil disables it.
	Logger *slog.Logger
}

// Store is a BadgerDB-backed result store. It is safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens the store described by cfg, creating the directory if needed.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else if cfg.Path == "" {
		return nil, errors.New("store: path required")
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&logger{cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenPath opens a persistent store at path.
func OpenPath(path string) (*Store, error) {
	return Open(Config{Path: path, SyncWrites: true})
}

// OpenInMemory opens an empty in-memory store.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StateRecord summarizes a terminated state.
type StateRecord struct {
	ID          uint64            `json:"id"`
	Entry       string            `json:"entry"`
	Path        []string          `json:"path"`
	Reachable   bool              `json:"reachable"`
	Exceptional bool              `json:"exceptional"`
	Result      string            `json:"result,omitempty"`
	Inputs      map[string]uint64 `json:"inputs,omitempty"`
}

// CoverageRecord is the coverage of a run when it stopped.
type CoverageRecord struct {
	RunID     uuid.UUID     `json:"run_id"`
	Percent   float64       `json:"percent"`
	Covered   int           `json:"covered"`
	Visited   int           `json:"visited"`
	Total     int           `json:"total"`
	Steps     uint64        `json:"steps"`
	Elapsed   time.Duration `json:"elapsed"`
	Uncovered []string      `json:"uncovered,omitempty"`
}

func coverageKey(runID uuid.UUID) []byte {
	return []byte(runPrefix + runID.String() + "/coverage")
}

func statePrefix(runID uuid.UUID) []byte {
	return []byte(runPrefix + runID.String() + "/state/")
}

func stateKey(runID uuid.UUID, id uint64) []byte {
	return fmt.Appendf(statePrefix(runID), "%020d", id)
}

// PutState writes a state record for a run.
func (s *Store) PutState(runID uuid.UUID, rec *StateRecord) error {
	return s.put(stateKey(runID, rec.ID), rec)
}

// PutCoverage writes the coverage record of rec.RunID, replacing any
// previous one.
func (s *Store) PutCoverage(rec *CoverageRecord) error {
	return s.put(coverageKey(rec.RunID), rec)
}

func (s *Store) put(key []byte, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}

// Coverage returns the coverage record of a run.
func (s *Store) Coverage(runID uuid.UUID) (*CoverageRecord, error) {
	var rec CoverageRecord
	if err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(coverageKey(runID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

// States returns the state records of a run ordered by state id.
func (s *Store) States(runID uuid.UUID) ([]*StateRecord, error) {
	var a []*StateRecord
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := statePrefix(runID)
		itr := txn.NewIterator(badger.DefaultIteratorOptions)
		defer itr.Close()

		for itr.Seek(prefix); itr.ValidForPrefix(prefix); itr.Next() {
			var rec StateRecord
			if err := itr.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", itr.Item().Key(), err)
			}
			a = append(a, &rec)
		}
		return nil
	})
	return a, err
}

// Runs returns the ids of every run with a coverage record, in key order.
func (s *Store) Runs() ([]uuid.UUID, error) {
	var a []uuid.UUID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		itr := txn.NewIterator(opts)
		defer itr.Close()

		prefix := []byte(runPrefix)
		for itr.Seek(prefix); itr.ValidForPrefix(prefix); itr.Next() {
			key := itr.Item().Key()
			if !bytes.HasSuffix(key, []byte("/coverage")) {
				continue
			}
			id, err := uuid.Parse(strings.TrimSuffix(strings.TrimPrefix(string(key), runPrefix), "/coverage"))
			if err != nil {
				return fmt.Errorf("parse run key %s: %w", key, err)
			}
			a = append(a, id)
		}
		return nil
	})
	return a, err
}

// logger adapts slog to badger.Logger.
type logger struct {
	*slog.Logger
}

func (l *logger) Errorf(format string, args ...any) {
	l.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *logger) Warningf(format string, args ...any) {
	l.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *logger) Infof(format string, args ...any) {
	l.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *logger) Debugf(format string, args ...any) {
	l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
