// Package historytest checks that a history.Store implementation behaves like
// the others.
package historytest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/eduardocaminha/reporter-sub000/internal/history"
)

// base is the creation time of the first sample record. Whole seconds keep
// the comparison valid for stores with coarse timestamps.
var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Sample returns a record with every field set.
func Sample(i int) history.Record {
	laudo := fmt.Sprintf("LAUDO %d", i)
	return history.Record{
		Text:         fmt.Sprintf("ditado %d", i),
		Report:       &laudo,
		Suggestions:  []string{fmt.Sprintf("sugestão %d", i)},
		PSMode:       i%2 == 0,
		Comparative:  i%3 == 0,
		Search:       true,
		Model:        "claude-test",
		InputTokens:  100 + i,
		OutputTokens: 10 + i,
		CreatedAt:    base.Add(time.Duration(i) * time.Minute),
	}
}

// Run exercises store. newStore must return an empty store; it is called once
// per subtest.
func Run(t *testing.T, newStore func(t *testing.T) history.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateAssignsIDAndKeepsFields", func(t *testing.T) {
		s := newStore(t)
		want := Sample(1)
		got, err := s.Create(ctx, want)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if got.ID == "" {
			t.Fatal("Create returned no ID")
		}
		list, err := s.ListRecent(ctx, 10)
		if err != nil {
			t.Fatalf("ListRecent: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("ListRecent returned %d records", len(list))
		}
		want.ID = got.ID
		AssertEqual(t, list[0], want)
	})

	t.Run("NullableFields", func(t *testing.T) {
		s := newStore(t)
		erro := "Informe a medida."
		r := history.Record{Text: "ditado", SoftError: &erro, CreatedAt: base}
		if _, err := s.Create(ctx, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
		list, err := s.ListRecent(ctx, 0)
		if err != nil {
			t.Fatalf("ListRecent: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("ListRecent returned %d records", len(list))
		}
		got := list[0]
		if got.Report != nil {
			t.Errorf("Report = %q, want nil", *got.Report)
		}
		if got.SoftError == nil || *got.SoftError != erro {
			t.Errorf("SoftError = %v", got.SoftError)
		}
		if got.Suggestions == nil || len(got.Suggestions) != 0 {
			t.Errorf("Suggestions = %#v, want []", got.Suggestions)
		}
	})

	t.Run("ListRecentNewestFirst", func(t *testing.T) {
		s := newStore(t)
		for i := range 5 {
			if _, err := s.Create(ctx, Sample(i)); err != nil {
				t.Fatalf("Create %d: %v", i, err)
			}
		}
		list, err := s.ListRecent(ctx, 3)
		if err != nil {
			t.Fatalf("ListRecent: %v", err)
		}
		var texts []string
		for _, r := range list {
			texts = append(texts, r.Text)
		}
		if want := []string{"ditado 4", "ditado 3", "ditado 2"}; !slices.Equal(texts, want) {
			t.Errorf("ListRecent = %v, want %v", texts, want)
		}
	})

	t.Run("Patch", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(ctx, Sample(1))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		edited := "LAUDO EDITADO"
		got, err := s.Patch(ctx, created.ID, history.Patch{Report: &edited})
		if err != nil {
			t.Fatalf("Patch laudo: %v", err)
		}
		if got.Report == nil || *got.Report != edited {
			t.Errorf("Report = %v", got.Report)
		}
		if !slices.Equal(got.Suggestions, created.Suggestions) {
			t.Errorf("Suggestions changed to %v", got.Suggestions)
		}

		sugs := []string{"nova"}
		got, err = s.Patch(ctx, created.ID, history.Patch{Suggestions: &sugs})
		if err != nil {
			t.Fatalf("Patch sugestoes: %v", err)
		}
		if !slices.Equal(got.Suggestions, sugs) || got.Report == nil || *got.Report != edited {
			t.Errorf("after second patch = %+v", got)
		}

		got, err = s.Patch(ctx, created.ID, history.Patch{})
		if err != nil {
			t.Fatalf("empty Patch: %v", err)
		}
		if got.ID != created.ID {
			t.Errorf("empty Patch returned %q", got.ID)
		}
	})

	t.Run("PatchMissing", func(t *testing.T) {
		s := newStore(t)
		edited := "x"
		_, err := s.Patch(ctx, "00000000-0000-0000-0000-000000000000", history.Patch{Report: &edited})
		if !errors.Is(err, history.ErrNotFound) {
			t.Errorf("Patch err = %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteAll", func(t *testing.T) {
		s := newStore(t)
		for i := range 3 {
			if _, err := s.Create(ctx, Sample(i)); err != nil {
				t.Fatalf("Create: %v", err)
			}
		}
		n, err := s.DeleteAll(ctx)
		if err != nil {
			t.Fatalf("DeleteAll: %v", err)
		}
		if n != 3 {
			t.Errorf("DeleteAll removed %d, want 3", n)
		}
		list, err := s.ListRecent(ctx, 10)
		if err != nil {
			t.Fatalf("ListRecent: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("%d records left", len(list))
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := newStore(t).Ping(ctx); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}

// AssertEqual compares two records field by field.
func AssertEqual(t *testing.T, got, want history.Record) {
	t.Helper()
	if got.ID != want.ID || got.Text != want.Text || got.Model != want.Model {
		t.Errorf("identity fields = %q %q %q, want %q %q %q", got.ID, got.Text, got.Model, want.ID, want.Text, want.Model)
	}
	if !equalPtr(got.Report, want.Report) || !equalPtr(got.SoftError, want.SoftError) {
		t.Errorf("laudo/erro = %v/%v, want %v/%v", got.Report, got.SoftError, want.Report, want.SoftError)
	}
	if !slices.Equal(got.Suggestions, want.Suggestions) {
		t.Errorf("Suggestions = %v, want %v", got.Suggestions, want.Suggestions)
	}
	if got.PSMode != want.PSMode || got.Comparative != want.Comparative || got.Search != want.Search {
		t.Errorf("modes = %v %v %v, want %v %v %v", got.PSMode, got.Comparative, got.Search, want.PSMode, want.Comparative, want.Search)
	}
	if got.InputTokens != want.InputTokens || got.OutputTokens != want.OutputTokens {
		t.Errorf("tokens = %d/%d, want %d/%d", got.InputTokens, got.OutputTokens, want.InputTokens, want.OutputTokens)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
