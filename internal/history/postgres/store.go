package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eduardocaminha/reporter-sub000/internal/history"
)

var _ history.Store = (*Store)(nil)

const columns = `id, texto, laudo, sugestoes, erro, modo_ps, modo_comparativo, usar_pesquisa,
       model, input_tokens, output_tokens, created_at`

// Store is the PostgreSQL-backed [history.Store]. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, checks the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Create implements [history.Store].
func (s *Store) Create(ctx context.Context, r history.Record) (history.Record, error) {
	r = history.Prepare(r, time.Now())

	const q = `
		INSERT INTO laudos
		    (id, texto, laudo, sugestoes, erro, modo_ps, modo_comparativo, usar_pesquisa,
		     model, input_tokens, output_tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, q,
		r.ID,
		r.Text,
		r.Report,
		r.Suggestions,
		r.SoftError,
		r.PSMode,
		r.Comparative,
		r.Search,
		r.Model,
		r.InputTokens,
		r.OutputTokens,
		r.CreatedAt,
	)
	if err != nil {
		return history.Record{}, fmt.Errorf("postgres store: create: %w", err)
	}
	return r, nil
}

// ListRecent implements [history.Store].
func (s *Store) ListRecent(ctx context.Context, limit int) ([]history.Record, error) {
	q := "SELECT " + columns + "\nFROM   laudos\nORDER  BY created_at DESC\nLIMIT  $1"
	rows, err := s.pool.Query(ctx, q, history.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if records == nil {
		records = []history.Record{}
	}
	return records, nil
}

// Patch implements [history.Store].
func (s *Store) Patch(ctx context.Context, id string, p history.Patch) (history.Record, error) {
	args := []any{id} // $1 = id
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var q string
	if p.Empty() {
		q = "SELECT " + columns + "\nFROM   laudos\nWHERE  id = $1"
	} else {
		var sets []string
		if p.Report != nil {
			sets = append(sets, "laudo = "+next(*p.Report))
		}
		if p.Suggestions != nil {
			sugs := *p.Suggestions
			if sugs == nil {
				sugs = []string{}
			}
			sets = append(sets, "sugestoes = "+next(sugs))
		}
		q = "UPDATE laudos\nSET    " + strings.Join(sets, ", ") + "\nWHERE  id = $1\nRETURNING " + columns
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return history.Record{}, fmt.Errorf("postgres store: patch: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return history.Record{}, history.ErrNotFound
	}
	if err != nil {
		return history.Record{}, fmt.Errorf("postgres store: patch: %w", err)
	}
	return r, nil
}

// DeleteAll implements [history.Store].
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM laudos")
	if err != nil {
		return 0, fmt.Errorf("postgres store: delete all: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping implements [history.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.CollectableRow) (history.Record, error) {
	var r history.Record
	err := row.Scan(
		&r.ID,
		&r.Text,
		&r.Report,
		&r.Suggestions,
		&r.SoftError,
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
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}
