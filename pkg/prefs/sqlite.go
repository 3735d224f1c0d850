package prefs

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	queryCreatePrefs = `CREATE TABLE IF NOT EXISTS prefs (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (namespace, key)
)`
	queryGetPref    = `SELECT value FROM prefs WHERE namespace = ? AND key = ?`
	queryUpsertPref = `INSERT INTO prefs (namespace, key, value) VALUES (?, ?, ?)
ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`
)

var _ Store = &SQLite{}

// SQLite stores prefs in a single table keyed by (namespace, key).
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, pkgerrors.Wrap(err, "create store directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open db")
	}
	// A single connection keeps :memory: databases alive across calls.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		queryCreatePrefs,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, pkgerrors.Wrapf(err, "exec %q", stmt)
		}
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) GetString(namespace, key string) (string, error) {
	var v string
	err := s.db.QueryRow(queryGetPref, namespace, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", pkgerrors.Wrapf(err, "get %s/%s", namespace, key)
	}
	return v, nil
}

func (s *SQLite) PutString(namespace, key, value string) error {
	_, err := s.db.Exec(queryUpsertPref, namespace, key, value)
	return pkgerrors.Wrapf(err, "put %s/%s", namespace, key)
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
