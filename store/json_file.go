package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stevemurr/flatfile-items/record"
)

// JSONFileStore keeps the whole collection as one pretty-printed JSON array.
//
// Layout:
//
//	data.json                         # the collection
//	data.json.lock                    # advisory lock shared by every process using the file
//	data.json.corrupt-<UTC timestamp> # unparseable content saved before it was overwritten
//
// Loads are fail-open: a missing, empty, unreadable or corrupt file reads as
// an empty collection. Corruption is logged, reported by Health and backed up
// before the next Update replaces it.
type JSONFileStore struct {
	mu     sync.RWMutex
	path   string
	logger *log.Logger

	// guarded by hmu; written from View under a read lock
	hmu    sync.Mutex
	health Health
}

func NewJSONFileStore(path string, logger *log.Logger) (*JSONFileStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}
	return &JSONFileStore{path: path, logger: logger, health: Health{Status: "ok"}}, nil
}

// Path returns the data file location.
func (s *JSONFileStore) Path() string {
	return s.path
}

func (s *JSONFileStore) Health() Health {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return s.health
}

// setHealth records the outcome of the latest load or save. The most recent
// backup location is kept across status changes.
func (s *JSONFileStore) setHealth(status, errMsg string) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.health = Health{Status: status, Error: errMsg, Backup: s.health.Backup}
}

func (s *JSONFileStore) View(fn func(record.Collection) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	// Reads stay fail-open: without the cross-process lock the in-process
	// read lock still orders us against this store's writers.
	if unlock, err := lockFile(s.path+".lock", false); err != nil {
		s.logger.Printf("store: reading %s without shared lock: %v", s.path, err)
	} else {
		defer unlock()
	}

	items, _ := s.load()
	return fn(items)
}

func (s *JSONFileStore) Update(fn func(record.Collection) (record.Collection, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := lockFile(s.path+".lock", true)
	if err != nil {
		return err
	}
	defer unlock()

	items, corrupt := s.load()
	next, err := fn(items)
	if err != nil {
		return err
	}
	if corrupt != nil {
		backup, err := s.backup(corrupt)
		if err != nil {
			return err
		}
		s.hmu.Lock()
		s.health.Backup = backup
		s.hmu.Unlock()
	}
	if err := s.save(next); err != nil {
		return err
	}
	if corrupt != nil {
		s.setHealth("ok", "")
	}
	return nil
}

// load reads and parses the file. When the content exists but cannot be
// parsed, the raw bytes are returned alongside the empty collection.
func (s *JSONFileStore) load() (record.Collection, []byte) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.setHealth("ok", "")
			return record.Collection{}, nil
		}
		s.logger.Printf("store: error reading %s: %v", s.path, err)
		s.setHealth("degraded", err.Error())
		return record.Collection{}, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		s.setHealth("ok", "")
		return record.Collection{}, nil
	}
	var items record.Collection
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.Printf("store: error parsing %s: %v", s.path, err)
		s.setHealth("degraded", err.Error())
		return record.Collection{}, data
	}
	if items == nil {
		items = record.Collection{}
	}
	s.setHealth("ok", "")
	return items, nil
}

// save writes items to a temp file beside the data file and renames it into
// place, so readers see either the old or the new collection.
func (s *JSONFileStore) save(items record.Collection) error {
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}

func (s *JSONFileStore) backup(data []byte) (string, error) {
	name := s.path + ".corrupt-" + time.Now().UTC().Format("20060102T150405.000000000Z")
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return "", fmt.Errorf("back up corrupt data file: %w", err)
	}
	s.logger.Printf("store: saved unparseable %s to %s before overwriting", s.path, name)
	return name, nil
}
