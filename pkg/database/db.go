package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Config locates the navigation history database.
type Config struct {
	Path string
	// BusyTimeoutMS is how long a writer waits on a locked database.
	BusyTimeoutMS int
}

func DefaultConfig() Config {
	if p := os.Getenv("STACNAV_HISTORY_PATH"); p != "" {
		return Config{Path: p}
	}

	// local default: ~/.stacnav/history.db
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return Config{Path: filepath.Join(home, ".stacnav", "history.db")}
}

// DSN renders cfg as a go-sqlite3 connection string with WAL journaling.
func (cfg Config) DSN() string {
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_busy_timeout", fmt.Sprint(busy))
	q.Set("_foreign_keys", "on")
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Open creates the parent directory if needed and connects.
func Open(cfg Config) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(4)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", cfg.Path, err)
	}
	return db, nil
}

func MustOpen(cfg Config) *sql.DB {
	db, err := Open(cfg)
	if err != nil {
		logrus.WithField("path", cfg.Path).Fatalf("failed to open history db: %v", err)
	}
	return db
}
