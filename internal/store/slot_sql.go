package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// SQLSlot keeps the value in one row of the deskkit_slots table.
type SQLSlot struct {
	db      *sql.DB
	dialect Dialect
	name    string
}

// OpenSQLSlot opens the database, creates the slot table if needed and returns
// the slot called name.
func OpenSQLSlot(dialect Dialect, dsn string, name string) (*SQLSlot, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: %s dsn is required", ErrInvalid, dialect)
	}
	switch dialect {
	case DialectSQLite, DialectMySQL:
	default:
		return nil, fmt.Errorf("%w: unknown sql dialect %q", ErrInvalid, dialect)
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, err
	}
	if dialect == DialectSQLite {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLSlot(db, dialect, name)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLSlot wraps an open database.
func NewSQLSlot(db *sql.DB, dialect Dialect, name string) (*SQLSlot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: slot name is required", ErrInvalid)
	}
	s := &SQLSlot{db: db, dialect: dialect, name: name}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLSlot) Close() error { return s.db.Close() }

func (s *SQLSlot) migrate(ctx context.Context) error {
	var ddl string
	switch s.dialect {
	case DialectMySQL:
		ddl = `CREATE TABLE IF NOT EXISTS deskkit_slots (
    name VARCHAR(191) PRIMARY KEY,
    payload LONGTEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`
	default:
		ddl = `CREATE TABLE IF NOT EXISTS deskkit_slots (
    name TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`
	}
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *SQLSlot) Get() ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(context.Background(),
		`SELECT payload FROM deskkit_slots WHERE name = ?`, s.name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload) == "" {
		return nil, ErrSlotEmpty
	}
	return []byte(payload), nil
}

func (s *SQLSlot) Put(data []byte) error {
	var q string
	switch s.dialect {
	case DialectMySQL:
		q = `INSERT INTO deskkit_slots (name, payload) VALUES (?, ?)
ON DUPLICATE KEY UPDATE payload = VALUES(payload)`
	default:
		q = `INSERT INTO deskkit_slots (name, payload) VALUES (?, ?)
ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`
	}
	_, err := s.db.ExecContext(context.Background(), q, s.name, string(data))
	return err
}
