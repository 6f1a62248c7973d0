package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

// SQLiteDSNForFile builds a DSN with WAL and a busy timeout so concurrent
// readers do not trip over the writer.
func SQLiteDSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite session store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite session store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite session store: open")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rec.Token = strings.TrimSpace(rec.Token)
	if rec.Token == "" {
		return errors.New("sqlite session store: token is empty")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return errors.Wrap(err, "sqlite session store: marshal data")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, created_at_ms, data_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			user_id = excluded.user_id,
			data_json = excluded.data_json
	`, rec.Token, rec.Data.UserID, rec.CreatedAt.UnixMilli(), string(data))
	if err != nil {
		return errors.Wrap(err, "sqlite session store: upsert session")
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, token string) (Record, bool, error) {
	if s == nil || s.db == nil {
		return Record{}, false, errors.New("sqlite session store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Record{}, false, nil
	}

	var (
		createdAtMs int64
		dataJSON    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at_ms, data_json FROM sessions WHERE token = ?
	`, token).Scan(&createdAtMs, &dataJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Wrap(err, "sqlite session store: load session")
	}

	rec := Record{Token: token, CreatedAt: time.UnixMilli(createdAtMs)}
	if err := json.Unmarshal([]byte(dataJSON), &rec.Data); err != nil {
		return Record{}, false, errors.Wrap(err, "sqlite session store: unmarshal data")
	}
	return rec, true, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, token string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, strings.TrimSpace(token)); err != nil {
		return errors.Wrap(err, "sqlite session store: delete session")
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite session store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
		  token TEXT PRIMARY KEY,
		  user_id TEXT NOT NULL,
		  created_at_ms INTEGER NOT NULL,
		  data_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS sessions_by_user
		  ON sessions(user_id);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite session store: migrate")
		}
	}
	return nil
}
