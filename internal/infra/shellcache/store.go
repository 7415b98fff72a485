// Package shellcache persists versioned response caches in a bbolt database. Each cache
// version lives in its own bucket so a whole version can be dropped at once.
package shellcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	currentSchemaVersion = 1
	bucketMeta           = "meta"
	versionPrefix        = "cache:"

	keySchemaVersion = "schema_version"
	keyActiveVersion = "active_version"
)

var (
	// ErrNotFound is returned when a version or key is not cached.
	ErrNotFound = errors.New("shellcache: not found")

	errUnknownSchema = errors.New("shellcache: unknown schema version")
	errEmptyVersion  = errors.New("shellcache: version must not be empty")
)

// Entry is a stored response.
type Entry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// Options configures Open behaviour.
type Options struct {
	// Timeout controls bbolt file open timeout. If zero, a sensible default is used.
	Timeout time.Duration
}

// Store is a bbolt-backed set of named cache versions.
type Store struct {
	db *bolt.DB
}

// Open creates (or reopens) the store at path.
func Open(path string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Versions lists the cache versions present, sorted by name.
func (s *Store) Versions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var versions []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if v, ok := strings.CutPrefix(string(name), versionPrefix); ok {
				versions = append(versions, v)
			}
			return nil
		})
	})
	sort.Strings(versions)
	return versions, err
}

// Create opens the named version, creating it empty if absent.
func (s *Store) Create(ctx context.Context, version string) error {
	if err := checkArgs(ctx, version); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName(version))
		return err
	})
}

// Has reports whether the named version exists.
func (s *Store) Has(ctx context.Context, version string) (bool, error) {
	if err := checkArgs(ctx, version); err != nil {
		return false, err
	}
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketName(version)) != nil
		return nil
	})
	return ok, err
}

// Delete drops a whole version. Deleting a missing version is not an error.
func (s *Store) Delete(ctx context.Context, version string) error {
	if err := checkArgs(ctx, version); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(bucketName(version))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// Get returns the entry stored under key in version.
func (s *Store) Get(ctx context.Context, version, key string) (Entry, error) {
	if err := checkArgs(ctx, version); err != nil {
		return Entry{}, err
	}

	var entry Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName(version))
		if bucket == nil {
			return ErrNotFound
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode entry %s: %w", key, err)
		}
		return nil
	})
	return entry, err
}

// Put stores one entry in an existing version.
func (s *Store) Put(ctx context.Context, version, key string, entry Entry) error {
	return s.PutAll(ctx, version, map[string]Entry{key: entry})
}

// PutAll stores every entry in a single transaction: either all are written or none.
// The version must have been created; a deleted version stays deleted and the call
// fails with ErrNotFound.
func (s *Store) PutAll(ctx context.Context, version string, entries map[string]Entry) error {
	if err := checkArgs(ctx, version); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName(version))
		if bucket == nil {
			return fmt.Errorf("version %s: %w", version, ErrNotFound)
		}
		for key, entry := range entries {
			if key == "" {
				return errors.New("shellcache: key must not be empty")
			}
			if entry.StoredAt.IsZero() {
				entry.StoredAt = time.Now().UTC()
			}
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("encode entry %s: %w", key, err)
			}
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Keys lists the keys stored in version.
func (s *Store) Keys(ctx context.Context, version string) ([]string, error) {
	if err := checkArgs(ctx, version); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName(version))
		if bucket == nil {
			return ErrNotFound
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// ActiveVersion returns the version recorded as active, or "" if none.
func (s *Store) ActiveVersion(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var version string
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		if meta == nil {
			return fmt.Errorf("missing bucket %s", bucketMeta)
		}
		version = string(meta.Get([]byte(keyActiveVersion)))
		return nil
	})
	return version, err
}

// SetActiveVersion records version as active. The version must exist.
func (s *Store) SetActiveVersion(ctx context.Context, version string) error {
	if err := checkArgs(ctx, version); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketName(version)) == nil {
			return fmt.Errorf("%w: version %s", ErrNotFound, version)
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta == nil {
			return fmt.Errorf("missing bucket %s", bucketMeta)
		}
		return meta.Put([]byte(keyActiveVersion), []byte(version))
	})
}

func (s *Store) ensureSchema() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		if err != nil {
			return fmt.Errorf("ensure meta bucket: %w", err)
		}
		raw := meta.Get([]byte(keySchemaVersion))
		if len(raw) == 0 {
			return meta.Put([]byte(keySchemaVersion), []byte(strconv.Itoa(currentSchemaVersion)))
		}
		version, err := strconv.Atoi(string(raw))
		if err != nil {
			return fmt.Errorf("parse schema version: %w", err)
		}
		if version != currentSchemaVersion {
			return fmt.Errorf("%w: %d", errUnknownSchema, version)
		}
		return nil
	})
}

func bucketName(version string) []byte {
	return []byte(versionPrefix + version)
}

func checkArgs(ctx context.Context, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if version == "" {
		return errEmptyVersion
	}
	return nil
}
