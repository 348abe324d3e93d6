package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"messbook/backend/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrDuplicateName    = fmt.Errorf("%w: name already in use", ErrValidation)
	ErrNoPendingRecords = errors.New("no pending records to finalize")
	ErrUnauthorized     = errors.New("unauthorized")
)

// InsufficientStockError carries the quantity still available so callers can
// surface it to the user.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %d", e.Available)
}

// StorageError wraps unexpected store failures (connectivity, driver errors)
// so callers can distinguish "your request was invalid" from "try again
// later". Business-rule failures are never wrapped in it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage wraps err as a StorageError unless it already is one of the
// business-rule errors above.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var insufficient *InsufficientStockError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNoPendingRecords) || errors.As(err, &insufficient) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Repository is the shared persistent store behind the catalog, the ledger
// and the day finalizer. Implementations must make RecordExpenditure's
// stock-check-then-decrement atomic: two concurrent calls against one item
// whose quantities individually fit but jointly exceed the available stock
// must not both succeed.
type Repository interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)

	// RecordExpenditure decrements the item's stock and inserts the record
	// as one unit of work. Either both happen or neither is visible.
	RecordExpenditure(ctx context.Context, exp domain.Expenditure) (*domain.Expenditure, error)
	// ListExpenditures returns records with date in [from, to] inclusive.
	// Zero from/to means unbounded on that side.
	ListExpenditures(ctx context.Context, from, to time.Time) ([]domain.Expenditure, error)
	// FinalizeExpenditures marks every pending record in [from, to] as
	// finalized and returns how many transitioned. Zero pending records is
	// ErrNoPendingRecords, not success.
	FinalizeExpenditures(ctx context.Context, from, to time.Time) (int, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]domain.UserAccount, error)
	GetItemsByIDs(ctx context.Context, ids []string) (map[string]domain.Item, error)

	CreateAuditEntry(ctx context.Context, entry domain.AuditEntry) error
	ListAuditEntries(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditEntry, error)
}
