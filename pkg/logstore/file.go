package logstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/delta/pkg/log"
)

// FileStore keeps the log as numbered JSON files under
// <table>/_delta_log. Commit atomicity comes from os.Link: linking the
// staged temp file to its final name fails with EEXIST when another writer
// already committed the version.
type FileStore struct {
	tablePath string
	logDir    string
	logger    zerolog.Logger
}

// NewFileStore creates a file-backed log store rooted at tablePath
func NewFileStore(tablePath string) (*FileStore, error) {
	logDir := filepath.Join(tablePath, LogDirName)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("logstore: create log directory: %w", err)
	}
	return &FileStore{
		tablePath: tablePath,
		logDir:    logDir,
		logger:    log.WithComponent("logstore"),
	}, nil
}

// TablePath returns the table root this store serves
func (s *FileStore) TablePath() string {
	return s.tablePath
}

func (s *FileStore) Write(version int64, lines []string) error {
	final := filepath.Join(s.logDir, DeltaFileName(version))

	// Fast-path check; the link below is the authoritative guard
	if _, err := os.Stat(final); err == nil {
		return ErrVersionExists
	}

	tmp, err := os.CreateTemp(s.logDir, ".tmp-commit-*")
	if err != nil {
		return fmt.Errorf("logstore: stage commit: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			tmp.Close()
			return fmt.Errorf("logstore: stage commit: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			tmp.Close()
			return fmt.Errorf("logstore: stage commit: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("logstore: stage commit: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("logstore: sync commit: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("logstore: close staged commit: %w", err)
	}

	// Atomic create-if-not-exists
	if err := os.Link(tmpPath, final); err != nil {
		if errors.Is(err, os.ErrExist) {
			s.logger.Debug().Int64("version", version).Msg("lost commit race")
			return ErrVersionExists
		}
		return fmt.Errorf("logstore: publish commit: %w", err)
	}
	return nil
}

func (s *FileStore) Read(version int64) ([]string, error) {
	return s.readLines(filepath.Join(s.logDir, DeltaFileName(version)))
}

func (s *FileStore) readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("logstore: open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptLog, path, err)
	}
	return lines, nil
}

func (s *FileStore) ListFrom(from int64) ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.logDir)
	if err != nil {
		return nil, fmt.Errorf("logstore: list log directory: %w", err)
	}
	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		v, ok := ParseDeltaFileName(de.Name())
		if !ok || v < from {
			continue
		}
		entries = append(entries, Entry{Version: v, Path: filepath.Join(s.logDir, de.Name())})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Version < entries[j].Version })
	if err := validateDense(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *FileStore) LatestVersion() (int64, bool, error) {
	dirEntries, err := os.ReadDir(s.logDir)
	if err != nil {
		return 0, false, fmt.Errorf("logstore: list log directory: %w", err)
	}
	latest := int64(-1)
	for _, de := range dirEntries {
		if v, ok := ParseDeltaFileName(de.Name()); ok && v > latest {
			latest = v
		}
	}
	if latest < 0 {
		return 0, false, nil
	}
	return latest, true, nil
}

func (s *FileStore) WriteCheckpoint(version int64, lines []string) error {
	final := filepath.Join(s.logDir, CheckpointFileName(version))
	tmp, err := os.CreateTemp(s.logDir, ".tmp-checkpoint-*")
	if err != nil {
		return fmt.Errorf("logstore: stage checkpoint: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			tmp.Close()
			return fmt.Errorf("logstore: stage checkpoint: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("logstore: stage checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("logstore: close staged checkpoint: %w", err)
	}
	// Checkpoints may be rewritten; rename replaces atomically
	if err := os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("logstore: publish checkpoint: %w", err)
	}
	return nil
}

func (s *FileStore) ReadCheckpoint(version int64) ([]string, error) {
	return s.readLines(filepath.Join(s.logDir, CheckpointFileName(version)))
}

func (s *FileStore) LastCheckpoint() (*CheckpointMeta, error) {
	raw, err := os.ReadFile(filepath.Join(s.logDir, LastCheckpointName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logstore: read last checkpoint: %w", err)
	}
	var meta CheckpointMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		// A torn pointer only slows replay down, it never breaks it
		s.logger.Warn().Err(err).Msg("unreadable _last_checkpoint pointer, ignoring")
		return nil, nil
	}
	return &meta, nil
}

func (s *FileStore) WriteLastCheckpoint(meta CheckpointMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("logstore: encode last checkpoint: %w", err)
	}
	path := filepath.Join(s.logDir, LastCheckpointName)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0644); err != nil {
		return fmt.Errorf("logstore: write last checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("logstore: publish last checkpoint: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
