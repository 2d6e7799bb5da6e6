// Package persistence realizes spec.md §5's cache-path persistence: a
// single bbolt database file holding the cache's last-known-good state so a
// freshly started process can serve stale-but-valid data before its first
// successful refresh.
//
// Grounded on wibus-wee-mcpv/internal/ui/uiconfig/store.go's bbolt
// open/bucket/view/update shape. Two buckets stand in for that store's
// scopes bucket: namespaces_states holds one key per namespace, and meta
// holds the cached_keys and elliptics_remotes side tables as two keys.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	namespacesBucket = "namespaces_states"
	cachedKeysKey    = "cached_keys"
	remotesKey       = "elliptics_remotes"
	metaBucketName   = "meta"
)

// record is the on-disk shape of one namespace's persisted state: the
// as-fetched raw payload (so a reload rebuilds a byte-identical snapshot)
// plus the last-update timestamp needed to resume staleness classification.
type record struct {
	LastUpdateTime time.Time       `json:"last_update_time"`
	Raw            json.RawMessage `json:"raw"`
}

// Store persists cache state to a single bbolt file at a configured path.
// A Store opened with an empty path is a no-op: Save and Load both succeed
// trivially, realizing spec.md's "persistence is optional" construction
// parameter without special-casing every call site.
type Store struct {
	mu   sync.Mutex
	db   *bolt.DB
	path string
}

// Open creates or opens the bbolt file at path. An empty path yields a
// disabled (no-op) store.
func Open(path string) (*Store, error) {
	if path == "" {
		return &Store{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(namespacesBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(metaBucketName))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache db schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) enabled() bool {
	return s.db != nil
}

// Close releases the underlying file handle. Safe to call on a disabled
// store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled() {
		return nil
	}
	return s.db.Close()
}

// SaveNamespace persists one namespace's as-fetched payload and update
// time, superseding whatever was stored for that name before.
func (s *Store) SaveNamespace(name string, raw json.RawMessage, lastUpdateTime time.Time) error {
	if !s.enabled() {
		return nil
	}
	payload, err := json.Marshal(record{LastUpdateTime: lastUpdateTime, Raw: raw})
	if err != nil {
		return fmt.Errorf("marshal namespace record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespacesBucket))
		return bucket.Put([]byte(name), payload)
	})
}

// DeleteNamespace removes a namespace's persisted state (control-service
// tombstone, spec.md §4.4 step 1).
func (s *Store) DeleteNamespace(name string) error {
	if !s.enabled() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespacesBucket))
		return bucket.Delete([]byte(name))
	})
}

// LoadNamespaces returns every persisted namespace's raw payload and
// last-update time, for rehydrating the registry on startup before the
// first successful refresh completes.
func (s *Store) LoadNamespaces() (map[string]NamespaceRecord, error) {
	out := make(map[string]NamespaceRecord)
	if !s.enabled() {
		return out, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(namespacesBucket))
		return bucket.ForEach(func(key, value []byte) error {
			var rec record
			if err := json.Unmarshal(value, &rec); err != nil {
				return fmt.Errorf("unmarshal namespace record %q: %w", key, err)
			}
			out[string(key)] = NamespaceRecord{LastUpdateTime: rec.LastUpdateTime, Raw: rec.Raw}
			return nil
		})
	})
	return out, err
}

// NamespaceRecord is LoadNamespaces's exported view of one persisted entry.
type NamespaceRecord struct {
	LastUpdateTime time.Time
	Raw            json.RawMessage
}

// SaveSideTable persists the cached_keys or elliptics_remotes blob verbatim
// under the meta bucket.
func (s *Store) SaveSideTable(name string, raw json.RawMessage) error {
	if !s.enabled() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucketName))
		return bucket.Put([]byte(name), raw)
	})
}

// LoadSideTable returns a previously saved cached_keys or
// elliptics_remotes blob, or nil if none was ever saved.
func (s *Store) LoadSideTable(name string) (json.RawMessage, error) {
	if !s.enabled() {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out json.RawMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucketName))
		value := bucket.Get([]byte(name))
		if value != nil {
			out = append(json.RawMessage(nil), value...)
		}
		return nil
	})
	return out, err
}

// CachedKeysKey and RemotesKey name the two side-table entries SaveSideTable
// / LoadSideTable address, matching spec.md §5's cached_keys and
// elliptics_remotes blobs.
const (
	CachedKeysKey = cachedKeysKey
	RemotesKey    = remotesKey
)
