package settings

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLiteStore keeps settings as key/value rows of a single sqlite table.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "settings: open %s", path)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "settings: migrate %s", path)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Default(), errors.Wrap(err, "settings: begin")
	}
	defer tx.Rollback()

	return readRows(ctx, tx)
}

func (s *SQLiteStore) Save(ctx context.Context, changes ...Change) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Default(), errors.Wrap(err, "settings: begin")
	}
	defer tx.Rollback()

	current, err := readRows(ctx, tx)
	if err != nil {
		return current, err
	}

	next := current.Apply(changes...)
	if err := next.Validate(); err != nil {
		return current, err
	}

	kv := encode(next)
	for _, key := range []string{KeyCloseAtDawn, KeyOpenAt, KeyDepression, KeyLatest} {
		value, ok := kv[key]
		if !ok {
			if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
				return current, errors.Wrapf(err, "settings: delete %s", key)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
			return current, errors.Wrapf(err, "settings: write %s", key)
		}
	}

	if err := tx.Commit(); err != nil {
		return current, errors.Wrap(err, "settings: commit")
	}

	return next, nil
}

func readRows(ctx context.Context, tx *sql.Tx) (Settings, error) {
	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Default(), errors.Wrap(err, "settings: query")
	}
	defer rows.Close()

	kv := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Default(), errors.Wrap(err, "settings: scan")
		}
		kv[key] = value
	}
	if err := rows.Err(); err != nil {
		return Default(), errors.Wrap(err, "settings: rows")
	}

	return decode(kv)
}
