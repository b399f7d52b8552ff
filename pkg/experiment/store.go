package experiment

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// ErrRecordNotFound is returned by Get for unknown IDs.
var ErrRecordNotFound = errors.New("record not found")

// Store types accepted by StoreConfig.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreBoltDB = "boltdb"
)

// Store persists transfer records.
type Store interface {
	Put(r *Record) error
	Get(id uuid.UUID) (*Record, error)
	// All returns every record ordered by creation time.
	All() ([]*Record, error)
	Close() error
}

func sortRecords(rs []*Record) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].CreatedAt.Before(rs[j].CreatedAt) })
}

type inMemoryStore struct {
	records map[uuid.UUID]*Record
	mu      sync.Mutex
}

// InMemoryStore implements Store in memory.
func InMemoryStore() Store {
	return &inMemoryStore{
		records: map[uuid.UUID]*Record{},
	}
}

func (s *inMemoryStore) Put(r *Record) error {
	s.mu.Lock()
	s.records[r.ID] = r
	s.mu.Unlock()
	return nil
}

func (s *inMemoryStore) Get(id uuid.UUID) (*Record, error) {
	s.mu.Lock()
	r, ok := s.records[id]
	s.mu.Unlock()

	if !ok {
		return nil, errors.Wrap(ErrRecordNotFound, id.String())
	}
	return r, nil
}

func (s *inMemoryStore) All() ([]*Record, error) {
	s.mu.Lock()
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.Unlock()

	sortRecords(out)
	return out, nil
}

func (s *inMemoryStore) Close() error { return nil }

type fileStore struct {
	dir string
}

// FileStore implements Store as one JSON file per record in dir.
func FileStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("mkdir: %s", err)
	}
	return &fileStore{dir}, nil
}

func (s *fileStore) path(id uuid.UUID) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", id))
}

func (s *fileStore) Put(r *Record) error {
	raw, err := json.MarshalIndent(r, "", "\t")
	if err != nil {
		return fmt.Errorf("json: %s", err)
	}
	if err := ioutil.WriteFile(s.path(r.ID), raw, 0600); err != nil {
		return fmt.Errorf("write: %s", err)
	}
	return nil
}

func (s *fileStore) Get(id uuid.UUID) (*Record, error) {
	raw, err := ioutil.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrRecordNotFound, id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("read: %s", err)
	}

	r := &Record{}
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("json: %s", err)
	}
	return r, nil
}

func (s *fileStore) All() ([]*Record, error) {
	infos, err := ioutil.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("readdir: %s", err)
	}

	var out []*Record
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, ".json"))
		if err != nil {
			log.Debugf("Skipping %s: %s", name, err)
			continue
		}
		r, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	sortRecords(out)
	return out, nil
}

func (s *fileStore) Close() error { return nil }

var boltDBBucket = []byte("records")

type boltDBStore struct {
	db *bbolt.DB
}

// BoltDBStore implements Store on top of BoltDB.
func BoltDBStore(path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("mkdir: %s", err)
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltDBBucket); err != nil {
			return fmt.Errorf("failed to create bucket: %s", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &boltDBStore{db: db}, nil
}

func (s *boltDBStore) Put(r *Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("json: %s", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltDBBucket).Put(r.ID[:], raw)
	})
}

func (s *boltDBStore) Get(id uuid.UUID) (*Record, error) {
	var r *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(boltDBBucket).Get(id[:])
		if raw == nil {
			return errors.Wrap(ErrRecordNotFound, id.String())
		}
		r = &Record{}
		return json.Unmarshal(raw, r)
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

func (s *boltDBStore) All() ([]*Record, error) {
	var out []*Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltDBBucket).ForEach(func(k, v []byte) error {
			r := &Record{}
			if err := json.Unmarshal(v, r); err != nil {
				return fmt.Errorf("record %x: %s", k, err)
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortRecords(out)
	return out, nil
}

// Close closes the underlying BoltDB instance.
func (s *boltDBStore) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
