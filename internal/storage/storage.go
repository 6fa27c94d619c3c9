// Package storage provides persistent run history for ksi-rank.
// It uses BoltDB as the underlying storage engine to keep every consensus
// ranking plus a per-feature vote history for tracking how a feature's
// support changes between runs.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"ksi-rank/internal/consensus"
)

const (
	runsBucket   = "runs"    // Rankings keyed by "<unixnano>_<runID>"
	runIDsBucket = "run_ids" // runID -> key in runsBucket
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Store provides persistent storage for ranking runs using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new storage instance with the specified data path.
// It initializes the BoltDB database and creates necessary buckets.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataPath, "ksi-rank.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{runsBucket, runIDsBucket, featuresBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func runKey(ts time.Time, runID string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), runID))
}

// StoreRun persists a ranking and the vote record of each of its features.
func (s *Store) StoreRun(r *consensus.Ranking) error {
	if r == nil || r.RunID == "" {
		return errors.New("store run: ranking has no run id")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal ranking: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		key := runKey(r.CreatedAt, r.RunID)
		if err := tx.Bucket([]byte(runsBucket)).Put(key, data); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(runIDsBucket)).Put([]byte(r.RunID), key); err != nil {
			return err
		}
		return putFeatureVotes(tx, r)
	})
}

// GetRun returns the ranking with the given run id.
func (s *Store) GetRun(runID string) (*consensus.Ranking, error) {
	var r consensus.Ranking
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(runIDsBucket)).Get([]byte(runID))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		data := tx.Bucket([]byte(runsBucket)).Get(key)
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LatestRun returns the most recently created ranking.
func (s *Store) LatestRun() (*consensus.Ranking, error) {
	var r *consensus.Ranking
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, v := tx.Bucket([]byte(runsBucket)).Cursor().Last()
		if v == nil {
			return ErrNotFound
		}
		r = &consensus.Ranking{}
		return json.Unmarshal(v, r)
	})
	return r, err
}

// GetRunsInRange returns rankings created within [start, end], oldest first.
// A zero start reads from the oldest run.
func (s *Store) GetRunsInRange(start, end time.Time) ([]consensus.Ranking, error) {
	var runs []consensus.Ranking

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		endKey := []byte(fmt.Sprintf("%020d_~", end.UnixNano()))

		k, v := c.First()
		if !start.IsZero() {
			k, v = c.Seek([]byte(fmt.Sprintf("%020d", start.UnixNano())))
		}
		for ; k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var r consensus.Ranking
			if err := json.Unmarshal(v, &r); err != nil {
				continue // Skip malformed records
			}
			runs = append(runs, r)
		}
		return nil
	})

	return runs, err
}

// DeleteRun removes a ranking together with its feature vote records.
func (s *Store) DeleteRun(runID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		ids := tx.Bucket([]byte(runIDsBucket))
		key := ids.Get([]byte(runID))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}

		runs := tx.Bucket([]byte(runsBucket))
		if data := runs.Get(key); data != nil {
			var r consensus.Ranking
			if err := json.Unmarshal(data, &r); err != nil {
				return fmt.Errorf("unmarshal ranking: %w", err)
			}
			if err := deleteFeatureVotes(tx, &r); err != nil {
				return err
			}
		}
		if err := runs.Delete(key); err != nil {
			return err
		}
		return ids.Delete([]byte(runID))
	})
}
