package logstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketLog         = []byte("log")
	bucketCheckpoints = []byte("checkpoints")
	bucketMeta        = []byte("meta")

	keyLastCheckpoint = []byte(LastCheckpointName)
)

// BoltStore keeps the log in a bbolt database next to the table data. The
// exactly-one-writer-per-version guarantee comes from the compare-and-swap
// put inside a single bbolt update transaction.
type BoltStore struct {
	tablePath string
	db        *bolt.DB
}

// NewBoltStore opens (or creates) the bolt-backed log store for a table
func NewBoltStore(tablePath string) (*BoltStore, error) {
	if err := os.MkdirAll(tablePath, 0755); err != nil {
		return nil, fmt.Errorf("logstore: create table dir: %w", err)
	}
	dbPath := filepath.Join(tablePath, LogDirName+".db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("logstore: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketLog, bucketCheckpoints, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{tablePath: tablePath, db: db}, nil
}

// TablePath returns the table root this store serves
func (s *BoltStore) TablePath() string {
	return s.tablePath
}

func versionKey(version int64) []byte {
	return []byte(fmt.Sprintf("%020d", version))
}

func joinLines(lines []string) []byte {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func splitLines(raw []byte) []string {
	var lines []string
	for _, line := range bytes.Split(raw, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			lines = append(lines, string(trimmed))
		}
	}
	return lines
}

func (s *BoltStore) Write(version int64, lines []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLog)
		key := versionKey(version)
		if b.Get(key) != nil {
			return ErrVersionExists
		}
		return b.Put(key, joinLines(lines))
	})
}

func (s *BoltStore) Read(version int64) ([]string, error) {
	var lines []string
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketLog).Get(versionKey(version))
		if raw == nil {
			return fmt.Errorf("%w: version %d", ErrFileNotFound, version)
		}
		lines = splitLines(raw)
		return nil
	})
	return lines, err
}

func (s *BoltStore) ListFrom(from int64) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLog).Cursor()
		for k, _ := c.Seek(versionKey(from)); k != nil; k, _ = c.Next() {
			var v int64
			if _, err := fmt.Sscanf(string(k), "%d", &v); err != nil {
				return fmt.Errorf("%w: bad log key %q", ErrCorruptLog, k)
			}
			entries = append(entries, Entry{Version: v, Path: string(k)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := validateDense(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *BoltStore) LatestVersion() (int64, bool, error) {
	latest := int64(-1)
	err := s.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(bucketLog).Cursor().Last()
		if k != nil {
			if _, err := fmt.Sscanf(string(k), "%d", &latest); err != nil {
				return fmt.Errorf("%w: bad log key %q", ErrCorruptLog, k)
			}
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	if latest < 0 {
		return 0, false, nil
	}
	return latest, true, nil
}

func (s *BoltStore) WriteCheckpoint(version int64, lines []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCheckpoints).Put(versionKey(version), joinLines(lines))
	})
}

func (s *BoltStore) ReadCheckpoint(version int64) ([]string, error) {
	var lines []string
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCheckpoints).Get(versionKey(version))
		if raw == nil {
			return fmt.Errorf("%w: checkpoint %d", ErrFileNotFound, version)
		}
		lines = splitLines(raw)
		return nil
	})
	return lines, err
}

func (s *BoltStore) LastCheckpoint() (*CheckpointMeta, error) {
	var meta *CheckpointMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get(keyLastCheckpoint)
		if raw == nil {
			return nil
		}
		var m CheckpointMeta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil
		}
		meta = &m
		return nil
	})
	return meta, err
}

func (s *BoltStore) WriteLastCheckpoint(meta CheckpointMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("logstore: encode last checkpoint: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyLastCheckpoint, raw)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
