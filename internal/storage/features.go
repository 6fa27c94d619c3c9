package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"ksi-rank/internal/consensus"
)

const featuresBucket = "features"

// FeatureVoteRecord is one feature's outcome in one run.
type FeatureVoteRecord struct {
	Feature    string    `json:"feature"`
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
	Votes      int       `json:"votes"`
	Voters     int       `json:"voters"`
	Rank       int       `json:"rank"` // 1-based position in the ranking
	SelectedBy []string  `json:"selected_by"`
}

func putFeatureVotes(tx *bbolt.Tx, r *consensus.Ranking) error {
	b := tx.Bucket([]byte(featuresBucket))
	for i, e := range r.Entries {
		rec := FeatureVoteRecord{
			Feature:    e.Feature,
			RunID:      r.RunID,
			Timestamp:  r.CreatedAt,
			Votes:      e.Votes,
			Voters:     r.Succeeded(),
			Rank:       i + 1,
			SelectedBy: e.SelectedBy,
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal feature record: %w", err)
		}
		if err := b.Put(featureKey(e.Feature, r.CreatedAt), data); err != nil {
			return err
		}
	}
	return nil
}

func deleteFeatureVotes(tx *bbolt.Tx, r *consensus.Ranking) error {
	b := tx.Bucket([]byte(featuresBucket))
	for _, e := range r.Entries {
		if err := b.Delete(featureKey(e.Feature, r.CreatedAt)); err != nil {
			return err
		}
	}
	return nil
}

func featureKey(feature string, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s_%020d", feature, ts.UnixNano()))
}

// GetFeatureHistory returns the vote records of one feature within
// [start, end], oldest first. A zero start reads from the oldest record.
func (s *Store) GetFeatureHistory(feature string, start, end time.Time) ([]FeatureVoteRecord, error) {
	var records []FeatureVoteRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(featuresBucket)).Cursor()

		prefix := []byte(feature + "_")
		startKey := prefix
		if !start.IsZero() {
			startKey = featureKey(feature, start)
		}
		endKey := featureKey(feature, end)

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			var rec FeatureVoteRecord
			if err := json.Unmarshal(v, &rec); err != nil || rec.Feature != feature {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}
