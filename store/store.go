package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"go.etcd.io/bbolt"

	"github.com/xeptore/playtag/track"
)

var catalogBucketName = []byte("catalog")

// Store persists catalog search responses between runs.
type Store struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

type entry struct {
	StoredAt time.Time        `json:"stored_at"`
	Records  []track.Metadata `json:"records"`
}

func Open(path string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o0755); nil != err {
		return nil, fmt.Errorf("failed to create cache directory: %v", err)
	}

	opts := &bbolt.Options{ //nolint:exhaustruct
		NoFreelistSync: true,
		ReadOnly:       false,
		Timeout:        1 * time.Second,
		NoGrowSync:     false,
		FreelistType:   bbolt.FreelistArrayType,
	}
	db, err := bbolt.Open(path, 0o600, opts)
	if nil != err {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(catalogBucketName); nil != err {
			return fmt.Errorf("failed to create catalog bucket: %v", err)
		}

		return nil
	})
	if nil != err {
		return nil, fmt.Errorf("failed to create buckets: %v", err)
	}

	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

// WithClock replaces the time source used for expiry.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Close() error {
	if err := s.db.Close(); nil != err {
		return fmt.Errorf("failed to close database: %v", err)
	}

	return nil
}

// Get returns the records stored under query. Expired entries are reported
// as missing.
func (s *Store) Get(query string) ([]track.Metadata, bool, error) {
	var (
		e     entry
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(catalogBucketName).Get([]byte(query))
		if nil == v {
			return nil
		}

		if err := json.Unmarshal(v, &e); nil != err {
			return fmt.Errorf("failed to decode entry: %v", err)
		}
		found = true

		return nil
	})
	if nil != err {
		return nil, false, fmt.Errorf("failed to load catalog entry: %v", err)
	}

	if !found || (s.ttl > 0 && s.now().Sub(e.StoredAt) > s.ttl) {
		return nil, false, nil
	}

	return e.Records, true, nil
}

func (s *Store) Put(query string, records []track.Metadata) error {
	v, err := json.Marshal(entry{StoredAt: s.now(), Records: records})
	if nil != err {
		return fmt.Errorf("failed to encode entry: %v", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(catalogBucketName).Put([]byte(query), v); nil != err {
			return fmt.Errorf("failed to put entry: %v", err)
		}

		return nil
	})
	if nil != err {
		return fmt.Errorf("failed to store catalog entry: %v", err)
	}

	return nil
}

// Purge removes every stored entry and returns how many there were.
func (s *Store) Purge() (int, error) {
	var n int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		n = tx.Bucket(catalogBucketName).Stats().KeyN
		if err := tx.DeleteBucket(catalogBucketName); nil != err {
			return fmt.Errorf("failed to delete catalog bucket: %v", err)
		}

		if _, err := tx.CreateBucket(catalogBucketName); nil != err {
			return fmt.Errorf("failed to create catalog bucket: %v", err)
		}

		return nil
	})
	if nil != err {
		return 0, fmt.Errorf("failed to purge catalog cache: %v", err)
	}

	return n, nil
}
