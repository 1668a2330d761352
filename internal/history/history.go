// Package history stores finished reports so the UI can list, edit and clear
// them. Implementations live in the memory, postgres and mysql subpackages;
// historytest holds the behaviour every implementation must share.
package history

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/eduardocaminha/reporter-sub000/internal/report"
)

// ErrNotFound is returned by [Store.Patch] when no record has the given ID.
var ErrNotFound = errors.New("history: record not found")

// Listing limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Record is one stored report.
type Record struct {
	ID           string    `json:"id"`
	Text         string    `json:"texto"`
	Report       *string   `json:"laudo"`
	Suggestions  []string  `json:"sugestoes"`
	SoftError    *string   `json:"erro"`
	PSMode       bool      `json:"modoPS"`
	Comparative  bool      `json:"modoComparativo"`
	Search       bool      `json:"usarPesquisa"`
	Model        string    `json:"model,omitempty"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Report      *string   `json:"laudo"`
	Suggestions *[]string `json:"sugestoes"`
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool { return p.Report == nil && p.Suggestions == nil }

// Apply returns r with p applied.
func (p Patch) Apply(r Record) Record {
	if p.Report != nil {
		text := *p.Report
		r.Report = &text
	}
	if p.Suggestions != nil {
		r.Suggestions = slices.Clone(*p.Suggestions)
		if r.Suggestions == nil {
			r.Suggestions = []string{}
		}
	}
	return r
}

// Store persists report records. Implementations are safe for concurrent use.
type Store interface {
	// Create stores r, assigning an ID and creation time when missing, and
	// returns the stored record.
	Create(ctx context.Context, r Record) (Record, error)

	// ListRecent returns up to limit records, newest first. The limit is
	// clamped with [ClampLimit].
	ListRecent(ctx context.Context, limit int) ([]Record, error)

	// Patch updates the record with the given ID and returns it.
	Patch(ctx context.Context, id string, p Patch) (Record, error)

	// DeleteAll removes every record and returns how many were removed.
	DeleteAll(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// ClampLimit maps non-positive limits to DefaultLimit and caps at MaxLimit.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

// Prepare fills in the ID, creation time and suggestions of a new record.
func Prepare(r Record, now time.Time) Record {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.CreatedAt = r.CreatedAt.UTC()
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
	return r
}

// NewRecord builds a record from a generation request and its result.
func NewRecord(req report.Request, res report.Result) Record {
	r := Record{
		Text:        req.Text,
		Report:      res.Report,
		Suggestions: slices.Clone(res.Suggestions),
		SoftError:   res.SoftError,
		PSMode:      req.PSMode,
		Comparative: req.Comparative,
		Search:      req.Search,
		Model:       res.Model,
	}
	if res.Usage != nil {
		r.InputTokens = res.Usage.Input
		r.OutputTokens = res.Usage.Output
	}
	return r
}
