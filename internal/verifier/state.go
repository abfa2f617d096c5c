package verifier

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketVerifierState = []byte("verifier_state")

const (
	keyWindow  = "rate_window"
	keyBreaker = "breaker"
)

// windowState is the persisted fixed-window rate limiter state
type windowState struct {
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
}

// breakerState is the persisted circuit breaker state
type breakerState struct {
	State    string    `json:"state"` // closed, open, half_open
	Failures int       `json:"failures"`
	OpenedAt time.Time `json:"opened_at"`
}

// StateStore persists limiter and breaker state in bbolt so the window
// and the breaker survive across process invocations of the engine.
type StateStore struct {
	db *bolt.DB
}

// OpenStateStore opens (or creates) the bbolt file backing verifier state
func OpenStateStore(path string) (*StateStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open verifier state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVerifierState)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create verifier state bucket: %w", err)
	}

	return &StateStore{db: db}, nil
}

func (s *StateStore) Close() error {
	return s.db.Close()
}

// Reset clears all persisted state, returning the limiter window and the
// breaker to their zero values.
func (s *StateStore) Reset() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketVerifierState); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketVerifierState)
		return err
	})
}

func (s *StateStore) load(key string, v any) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketVerifierState).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	return found, err
}

func (s *StateStore) save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVerifierState).Put([]byte(key), data)
	})
}
