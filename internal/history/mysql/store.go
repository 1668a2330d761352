// Package mysql is a MySQL history store on database/sql. Suggestions are
// stored as JSON text.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/eduardocaminha/reporter-sub000/internal/history"
)

var _ history.Store = (*Store)(nil)

const ddlReports = `CREATE TABLE IF NOT EXISTS laudos (
    id                CHAR(36)     NOT NULL PRIMARY KEY,
    texto             MEDIUMTEXT   NOT NULL,
    laudo             MEDIUMTEXT   NULL,
    sugestoes         JSON         NOT NULL,
    erro              TEXT         NULL,
    modo_ps           BOOLEAN      NOT NULL DEFAULT FALSE,
    modo_comparativo  BOOLEAN      NOT NULL DEFAULT FALSE,
    usar_pesquisa     BOOLEAN      NOT NULL DEFAULT FALSE,
    model             VARCHAR(255) NOT NULL DEFAULT '',
    input_tokens      INT          NOT NULL DEFAULT 0,
    output_tokens     INT          NOT NULL DEFAULT 0,
    created_at        DATETIME(6)  NOT NULL,
    INDEX idx_laudos_created_at (created_at)
) DEFAULT CHARSET = utf8mb4`

const columns = "id, texto, laudo, sugestoes, erro, modo_ps, modo_comparativo, usar_pesquisa, model, input_tokens, output_tokens, created_at"

// Store is the MySQL-backed [history.Store].
type Store struct {
	db *sql.DB
}

// Open connects to the database at dsn (go-sql-driver format, e.g.
// "user:pass@tcp(host:3306)/reporter") and prepares the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql store: parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql store: connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql store: ping: %w", err)
	}
	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database handle and runs [Migrate] on it.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Migrate creates the laudos table. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, ddlReports); err != nil {
		return fmt.Errorf("mysql migrate: %w", err)
	}
	return nil
}

// Create implements [history.Store].
func (s *Store) Create(ctx context.Context, r history.Record) (history.Record, error) {
	r = history.Prepare(r, time.Now())
	sugs, err := json.Marshal(r.Suggestions)
	if err != nil {
		return history.Record{}, fmt.Errorf("mysql store: encode sugestoes: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO laudos ("+columns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID,
		r.Text,
		nullString(r.Report),
		string(sugs),
		nullString(r.SoftError),
		r.PSMode,
		r.Comparative,
		r.Search,
		r.Model,
		r.InputTokens,
		r.OutputTokens,
		r.CreatedAt,
	)
	if err != nil {
		return history.Record{}, fmt.Errorf("mysql store: create: %w", err)
	}
	return r, nil
}

// ListRecent implements [history.Store].
func (s *Store) ListRecent(ctx context.Context, limit int) ([]history.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+columns+" FROM laudos ORDER BY created_at DESC LIMIT ?",
		history.ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("mysql store: list: %w", err)
	}
	defer rows.Close()

	records := []history.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("mysql store: scan rows: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql store: list: %w", err)
	}
	return records, nil
}

// Patch implements [history.Store]. MySQL has no RETURNING, so the record is
// read back after the update.
func (s *Store) Patch(ctx context.Context, id string, p history.Patch) (history.Record, error) {
	if !p.Empty() {
		var (
			sets []string
			args []any
		)
		if p.Report != nil {
			sets = append(sets, "laudo = ?")
			args = append(args, *p.Report)
		}
		if p.Suggestions != nil {
			sugs := *p.Suggestions
			if sugs == nil {
				sugs = []string{}
			}
			data, err := json.Marshal(sugs)
			if err != nil {
				return history.Record{}, fmt.Errorf("mysql store: encode sugestoes: %w", err)
			}
			sets = append(sets, "sugestoes = ?")
			args = append(args, string(data))
		}
		args = append(args, id)
		if _, err := s.db.ExecContext(ctx, "UPDATE laudos SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
			return history.Record{}, fmt.Errorf("mysql store: patch: %w", err)
		}
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM laudos WHERE id = ?", id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return history.Record{}, history.ErrNotFound
	}
	if err != nil {
		return history.Record{}, fmt.Errorf("mysql store: patch: %w", err)
	}
	return r, nil
}

// DeleteAll implements [history.Store].
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM laudos")
	if err != nil {
		return 0, fmt.Errorf("mysql store: delete all: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mysql store: delete all: %w", err)
	}
	return n, nil
}

// Ping implements [history.Store].
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close implements [history.Store].
func (s *Store) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (history.Record, error) {
	var (
		r           history.Record
		laudo, erro sql.NullString
		sugs        []byte
	)
	err := sc.Scan(
		&r.ID,
		&r.Text,
		&laudo,
		&sugs,
		&erro,
		&r.PSMode,
		&r.Comparative,
		&r.Search,
		&r.Model,
		&r.InputTokens,
		&r.OutputTokens,
		&r.CreatedAt,
	)
	if err != nil {
		return history.Record{}, err
	}
	if laudo.Valid {
		r.Report = &laudo.String
	}
	if erro.Valid {
		r.SoftError = &erro.String
	}
	if len(sugs) > 0 {
		if err := json.Unmarshal(sugs, &r.Suggestions); err != nil {
			return history.Record{}, fmt.Errorf("decode sugestoes: %w", err)
		}
	}
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
