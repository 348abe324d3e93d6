package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"messbook/backend/internal/dayspan"
	"messbook/backend/internal/domain"
	"messbook/backend/internal/store"
)

func mustItem(t *testing.T, s *Store, name string, stock int) *domain.Item {
	t.Helper()
	item, err := s.CreateItem(context.Background(), domain.Item{
		Name:           name,
		AvailableStock: stock,
		CostPerUnit:    1,
	})
	if err != nil {
		t.Fatalf("create item %q: %v", name, err)
	}
	return item
}

func record(t *testing.T, s *Store, itemID string, qty int, date time.Time) *domain.Expenditure {
	t.Helper()
	exp, err := s.RecordExpenditure(context.Background(), domain.Expenditure{
		Date:         date,
		ItemID:       itemID,
		QuantityUsed: qty,
		UserID:       "user-test",
	})
	if err != nil {
		t.Fatalf("record expenditure: %v", err)
	}
	return exp
}

func TestItemNamesAreUniqueCaseInsensitive(t *testing.T) {
	s := New()
	mustItem(t, s, "Beras", 10)

	_, err := s.CreateItem(context.Background(), domain.Item{Name: "  BERAS ", AvailableStock: 1, CostPerUnit: 1})
	if !errors.Is(err, store.ErrDuplicateName) {
		t.Fatalf("expected duplicate name, got %v", err)
	}
}

func TestUpdateItemKeepsCreatedAt(t *testing.T) {
	s := New()
	item := mustItem(t, s, "Beras", 10)

	changed := *item
	changed.AvailableStock = 99
	updated, err := s.UpdateItem(context.Background(), changed)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.CreatedAt.Equal(item.CreatedAt) {
		t.Fatalf("created_at must be immutable")
	}
	if updated.AvailableStock != 99 {
		t.Fatalf("expected stock 99, got %d", updated.AvailableStock)
	}
}

func TestFinalizeOnlyTouchesWindow(t *testing.T) {
	s := New()
	item := mustItem(t, s, "Beras", 100)

	yesterday := time.Now().AddDate(0, 0, -1)
	record(t, s, item.ID, 1, yesterday)
	record(t, s, item.ID, 1, time.Now())
	record(t, s, item.ID, 1, time.Now())

	span := dayspan.Today()
	count, err := s.FinalizeExpenditures(context.Background(), span.Start, span.End)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 finalized today, got %d", count)
	}

	// Yesterday's record is still pending.
	ySpan := dayspan.Of(yesterday)
	count, err = s.FinalizeExpenditures(context.Background(), ySpan.Start, ySpan.End)
	if err != nil {
		t.Fatalf("finalize yesterday: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 finalized yesterday, got %d", count)
	}
}

func TestFinalizeRecordsExactlyOnBoundaries(t *testing.T) {
	s := New()
	item := mustItem(t, s, "Beras", 100)

	span := dayspan.Of(time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local))
	// First instant and last nanosecond of the day are in; the neighbors
	// one nanosecond outside are not.
	record(t, s, item.ID, 1, span.Start)
	record(t, s, item.ID, 1, span.End)
	record(t, s, item.ID, 1, span.End.Add(time.Nanosecond))
	record(t, s, item.ID, 1, span.Start.Add(-time.Nanosecond))

	count, err := s.FinalizeExpenditures(context.Background(), span.Start, span.End)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected both boundary records and nothing else, got %d", count)
	}
}

func TestListExpendituresZeroTimesAreUnbounded(t *testing.T) {
	s := New()
	item := mustItem(t, s, "Beras", 100)

	record(t, s, item.ID, 1, time.Now().AddDate(0, -1, 0))
	record(t, s, item.ID, 1, time.Now())

	all, err := s.ListExpenditures(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected every record with zero bounds, got %d", len(all))
	}
}

func TestRecordedExpenditureStartsPending(t *testing.T) {
	s := New()
	item := mustItem(t, s, "Beras", 100)

	exp, err := s.RecordExpenditure(context.Background(), domain.Expenditure{
		ItemID:       item.ID,
		QuantityUsed: 1,
		UserID:       "user-test",
		Finalized:    true, // callers cannot pre-finalize
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if exp.Finalized {
		t.Fatalf("new records must start pending")
	}
	if exp.ID == "" || exp.Date.IsZero() {
		t.Fatalf("expected assigned id and date: %+v", exp)
	}
}
