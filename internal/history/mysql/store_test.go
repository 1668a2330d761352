package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"slices"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/eduardocaminha/reporter-sub000/internal/history"
	"github.com/eduardocaminha/reporter-sub000/internal/history/historytest"
)

var recordColumns = []string{
	"id", "texto", "laudo", "sugestoes", "erro", "modo_ps", "modo_comparativo",
	"usar_pesquisa", "model", "input_tokens", "output_tokens", "created_at",
}

var createdAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newMockStore opens a Store on sqlmock, expecting the migration.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS laudos")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := New(context.Background(), db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
	return s, mock
}

func TestCreate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO laudos (id, texto, laudo, sugestoes")).
		WithArgs(sqlmock.AnyArg(), "ditado 1", "LAUDO 1", `["sugestão 1"]`, nil, false, false, true, "claude-test", 101, 11, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	r, err := s.Create(context.Background(), historytest.Sample(1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.ID == "" {
		t.Error("Create returned no ID")
	}
}

func TestCreate_Error(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO laudos")).WillReturnError(errors.New("duplicate key"))
	if _, err := s.Create(context.Background(), historytest.Sample(1)); err == nil {
		t.Error("Create swallowed the driver error")
	}
}

func TestListRecent(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows(recordColumns).
		AddRow("b", "ditado b", "LAUDO B", `["x","y"]`, nil, true, false, false, "m", 10, 2, createdAt.Add(time.Minute)).
		AddRow("a", "ditado a", nil, `[]`, "Falta a medida.", false, true, true, "m", 5, 1, createdAt)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, texto") + ".*" + regexp.QuoteMeta("FROM laudos ORDER BY created_at DESC LIMIT ?")).
		WithArgs(history.DefaultLimit).
		WillReturnRows(rows)

	list, err := s.ListRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d records", len(list))
	}

	b := list[0]
	if b.ID != "b" || b.Report == nil || *b.Report != "LAUDO B" || !slices.Equal(b.Suggestions, []string{"x", "y"}) || !b.PSMode {
		t.Errorf("first record = %+v", b)
	}
	a := list[1]
	if a.Report != nil || a.SoftError == nil || *a.SoftError != "Falta a medida." {
		t.Errorf("second record laudo/erro = %v/%v", a.Report, a.SoftError)
	}
	if a.Suggestions == nil || len(a.Suggestions) != 0 || !a.Comparative || !a.Search {
		t.Errorf("second record = %+v", a)
	}
	if !a.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt = %v", a.CreatedAt)
	}
}

func TestListRecent_ClampsLimit(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM laudos").
		WithArgs(history.MaxLimit).
		WillReturnRows(sqlmock.NewRows(recordColumns))

	list, err := s.ListRecent(context.Background(), 5000)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("list = %#v, want empty", list)
	}
}

func TestListRecent_BadSuggestions(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM laudos").
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow("a", "t", nil, `{not json`, nil, false, false, false, "", 0, 0, createdAt))

	if _, err := s.ListRecent(context.Background(), 1); err == nil {
		t.Error("ListRecent accepted undecodable sugestoes")
	}
}

func TestPatch(t *testing.T) {
	tests := []struct {
		name     string
		patch    func() history.Patch
		update   string
		args     []driver.Value
		noUpdate bool
	}{
		{
			name: "laudo",
			patch: func() history.Patch {
				text := "LAUDO EDITADO"
				return history.Patch{Report: &text}
			},
			update: "UPDATE laudos SET laudo = ? WHERE id = ?",
			args:   []driver.Value{"LAUDO EDITADO", "id-1"},
		},
		{
			name: "sugestoes cleared",
			patch: func() history.Patch {
				var none []string
				return history.Patch{Suggestions: &none}
			},
			update: "UPDATE laudos SET sugestoes = ? WHERE id = ?",
			args:   []driver.Value{`[]`, "id-1"},
		},
		{
			name: "both",
			patch: func() history.Patch {
				text := "L"
				sugs := []string{"s"}
				return history.Patch{Report: &text, Suggestions: &sugs}
			},
			update: "UPDATE laudos SET laudo = ?, sugestoes = ? WHERE id = ?",
			args:   []driver.Value{"L", `["s"]`, "id-1"},
		},
		{
			name:     "empty patch only reads",
			patch:    func() history.Patch { return history.Patch{} },
			noUpdate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			if !tt.noUpdate {
				mock.ExpectExec(regexp.QuoteMeta(tt.update)).
					WithArgs(tt.args...).
					WillReturnResult(sqlmock.NewResult(0, 1))
			}
			mock.ExpectQuery(regexp.QuoteMeta("FROM laudos WHERE id = ?")).
				WithArgs("id-1").
				WillReturnRows(sqlmock.NewRows(recordColumns).
					AddRow("id-1", "t", "L", `["s"]`, nil, false, false, false, "m", 1, 1, createdAt))

			r, err := s.Patch(context.Background(), "id-1", tt.patch())
			if err != nil {
				t.Fatalf("Patch: %v", err)
			}
			if r.ID != "id-1" {
				t.Errorf("ID = %q", r.ID)
			}
		})
	}
}

func TestPatch_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	text := "x"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE laudos SET laudo = ? WHERE id = ?")).
		WithArgs("x", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM laudos WHERE id = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	if _, err := s.Patch(context.Background(), "missing", history.Patch{Report: &text}); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteAll(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM laudos")).WillReturnResult(sqlmock.NewResult(0, 4))
	n, err := s.DeleteAll(context.Background())
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if n != 4 {
		t.Errorf("DeleteAll = %d, want 4", n)
	}
}

func TestPing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectPing()
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestNew_MigrationError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("access denied"))

	if _, err := New(context.Background(), db); err == nil {
		t.Error("New ignored the migration error")
	}
}

func TestOpen_BadDSN(t *testing.T) {
	if _, err := Open(context.Background(), "not a dsn"); err == nil {
		t.Error("Open accepted an invalid DSN")
	}
}
