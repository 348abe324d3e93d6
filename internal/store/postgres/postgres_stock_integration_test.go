package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"messbook/backend/internal/domain"
	"messbook/backend/internal/store"
)

func TestRecordExpenditureNeverOversells(t *testing.T) {
	databaseURL := os.Getenv("MESSBOOK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set MESSBOOK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	itemName := fmt.Sprintf("it-beras-%d", stamp)

	item, err := s.CreateItem(ctx, domain.Item{
		Name:           itemName,
		AvailableStock: 50,
		CostPerUnit:    1.5,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM expenditures WHERE item_id = $1`, item.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, item.ID)
	})

	// Ten concurrent writers wanting 10 each against a stock of 50: exactly
	// five commits, the rest fail with the remaining stock in the error.
	const workers = 10
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, results[slot] = s.RecordExpenditure(ctx, domain.Expenditure{
				Date:         time.Now(),
				ItemID:       item.ID,
				QuantityUsed: 10,
				UserID:       fmt.Sprintf("it-user-%d", slot),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *store.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if succeeded != 5 {
		t.Fatalf("expected exactly 5 successful writes, got %d", succeeded)
	}

	after, err := s.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if after.AvailableStock != 0 {
		t.Fatalf("expected stock exactly 0, got %d", after.AvailableStock)
	}
}

func TestFinalizeExpendituresIsOneShot(t *testing.T) {
	databaseURL := os.Getenv("MESSBOOK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set MESSBOOK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	item, err := s.CreateItem(ctx, domain.Item{
		Name:           fmt.Sprintf("it-gula-%d", stamp),
		AvailableStock: 20,
		CostPerUnit:    0.8,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM expenditures WHERE item_id = $1`, item.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, item.ID)
	})

	// Pin the records to a day far in the past so the test never races a
	// concurrent run finalizing today.
	day := time.Date(2001, 2, 3, 12, 0, 0, 0, time.Local)
	for i := 0; i < 2; i++ {
		if _, err := s.RecordExpenditure(ctx, domain.Expenditure{
			Date:         day,
			ItemID:       item.ID,
			QuantityUsed: 1,
			UserID:       "it-user",
		}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	from := time.Date(2001, 2, 3, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 0, 1).Add(-time.Nanosecond)

	count, err := s.FinalizeExpenditures(ctx, from, to)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 finalized, got %d", count)
	}

	if _, err := s.FinalizeExpenditures(ctx, from, to); !errors.Is(err, store.ErrNoPendingRecords) {
		t.Fatalf("expected no-pending on repeat finalize, got %v", err)
	}
}
