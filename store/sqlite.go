package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/stevemurr/flatfile-items/record"
)

// SqliteStore keeps the collection in a single SQLite table. Every Update
// rewrites the table inside one transaction, mirroring the whole-file
// semantics of JSONFileStore.
//
// Tables:
//
//	items(position, id, data)  PRIMARY KEY (position)
type SqliteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS items (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL,
		data TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func loadItems(q querier) (record.Collection, error) {
	rows, err := q.Query("SELECT data FROM items ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := record.Collection{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r record.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode stored item: %w", err)
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (s *SqliteStore) View(fn func(record.Collection) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items, err := loadItems(s.db)
	if err != nil {
		return err
	}
	return fn(items)
}

func (s *SqliteStore) Update(fn func(record.Collection) (record.Collection, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	items, err := loadItems(tx)
	if err != nil {
		return err
	}
	next, err := fn(items)
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM items"); err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO items (position, id, data) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, r := range next {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode item %q: %w", r.ID, err)
		}
		if _, err := stmt.Exec(i, r.ID, string(b)); err != nil {
			return err
		}
	}
	return tx.Commit()
}
