// Package memory implements store.Repository with mutex-guarded maps. It is
// the dev-mode and test backend; the single lock makes every operation,
// including the stock-check-then-decrement, one atomic critical section.
package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"messbook/backend/internal/domain"
	"messbook/backend/internal/store"
	"messbook/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	itemsByID        map[string]domain.Item
	itemIDByName     map[string]string
	expendituresByID map[string]domain.Expenditure
	usersByID        map[string]domain.UserAccount
	userIDByEmail    map[string]string
	auditEntries     []domain.AuditEntry
}

func New() *Store {
	return &Store{
		itemsByID:        make(map[string]domain.Item),
		itemIDByName:     make(map[string]string),
		expendituresByID: make(map[string]domain.Expenditure),
		usersByID:        make(map[string]domain.UserAccount),
		userIDByEmail:    make(map[string]string),
	}
}

// NewSeeded builds a store preloaded with a small item catalog and two user
// accounts for dev/demo mode. Credentials come from SEED_ADMIN_PASSWORD and
// SEED_USER_PASSWORD, with warned-about defaults when unset. The seeded
// store is never used when DATABASE_URL is configured.
func NewSeeded() *Store {
	s := New()
	now := time.Now()

	items := []domain.Item{
		{Name: "Beras 5kg", AvailableStock: 120, CostPerUnit: 68000},
		{Name: "Minyak Goreng 1L", AvailableStock: 80, CostPerUnit: 17500},
		{Name: "Telur Ayam (tray)", AvailableStock: 40, CostPerUnit: 52000},
		{Name: "Gula Pasir 1kg", AvailableStock: 60, CostPerUnit: 17400},
		{Name: "Tepung Terigu 1kg", AvailableStock: 55, CostPerUnit: 12800},
		{Name: "Kopi Bubuk 250g", AvailableStock: 30, CostPerUnit: 24500},
		{Name: "Teh Celup (box)", AvailableStock: 45, CostPerUnit: 9800},
		{Name: "Garam 500g", AvailableStock: 70, CostPerUnit: 4500},
	}
	for _, item := range items {
		item.ID = xid.New("item")
		item.CreatedAt = now
		item.UpdatedAt = now
		s.itemsByID[item.ID] = item
		s.itemIDByName[normalizeName(item.Name)] = item.ID
	}

	for _, u := range []struct {
		name     string
		email    string
		envKey   string
		fallback string
		role     string
	}{
		{"Pengelola", "admin@messbook.local", "SEED_ADMIN_PASSWORD", "admin123", domain.RoleAdmin},
		{"Anggota", "user@messbook.local", "SEED_USER_PASSWORD", "user123", domain.RoleUser},
	} {
		password := os.Getenv(u.envKey)
		if password == "" {
			password = u.fallback
			log.Printf("[memory-store] WARNING: using default dev password for %s. Set %s to override.", u.email, u.envKey)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		account := domain.UserAccount{
			ID:           xid.New("user"),
			Name:         u.name,
			Email:        u.email,
			PasswordHash: string(hash),
			Role:         u.role,
			CreatedAt:    now,
		}
		s.usersByID[account.ID] = account
		s.userIDByEmail[account.Email] = account.ID
	}

	return s
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.itemsByID))
	for _, item := range s.itemsByID {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *Store) GetItem(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.itemsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := item
	return &found, nil
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, store.ErrValidation
	}
	if item.AvailableStock < 0 || item.CostPerUnit < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeName(item.Name)
	if _, exists := s.itemIDByName[key]; exists {
		return nil, store.ErrDuplicateName
	}

	now := time.Now()
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	item.CreatedAt = now
	item.UpdatedAt = now

	s.itemsByID[item.ID] = item
	s.itemIDByName[key] = item.ID

	created := item
	return &created, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if strings.TrimSpace(item.Name) == "" || item.AvailableStock < 0 || item.CostPerUnit < 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.itemsByID[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}

	key := normalizeName(item.Name)
	if owner, taken := s.itemIDByName[key]; taken && owner != item.ID {
		return nil, store.ErrDuplicateName
	}

	delete(s.itemIDByName, normalizeName(existing.Name))
	s.itemIDByName[key] = item.ID

	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now()
	s.itemsByID[item.ID] = item

	updated := item
	return &updated, nil
}

func (s *Store) RecordExpenditure(_ context.Context, exp domain.Expenditure) (*domain.Expenditure, error) {
	if exp.ItemID == "" || exp.UserID == "" || exp.QuantityUsed < 1 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.itemsByID[exp.ItemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if exp.QuantityUsed > item.AvailableStock {
		return nil, &store.InsufficientStockError{Available: item.AvailableStock}
	}

	item.AvailableStock -= exp.QuantityUsed
	item.UpdatedAt = time.Now()
	s.itemsByID[item.ID] = item

	if exp.ID == "" {
		exp.ID = xid.New("exp")
	}
	if exp.Date.IsZero() {
		exp.Date = time.Now()
	}
	exp.Finalized = false
	s.expendituresByID[exp.ID] = exp

	created := exp
	return &created, nil
}

func (s *Store) ListExpenditures(_ context.Context, from, to time.Time) ([]domain.Expenditure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.Expenditure, 0, len(s.expendituresByID))
	for _, exp := range s.expendituresByID {
		if inRange(exp.Date, from, to) {
			records = append(records, exp)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
	return records, nil
}

func (s *Store) FinalizeExpenditures(_ context.Context, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, exp := range s.expendituresByID {
		if exp.Finalized || !inRange(exp.Date, from, to) {
			continue
		}
		exp.Finalized = true
		s.expendituresByID[id] = exp
		count++
	}
	if count == 0 {
		return 0, store.ErrNoPendingRecords
	}
	return count, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	email := normalizeName(user.Email)
	if email == "" || user.Name == "" || user.PasswordHash == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.userIDByEmail[email]; exists {
		return nil, store.ErrDuplicateName
	}

	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	user.Email = email
	user.CreatedAt = time.Now()

	s.usersByID[user.ID] = user
	s.userIDByEmail[email] = user.ID

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userIDByEmail[normalizeName(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) GetUsersByIDs(_ context.Context, ids []string) (map[string]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.UserAccount, len(ids))
	for _, id := range ids {
		if user, ok := s.usersByID[id]; ok {
			result[id] = user
		}
	}
	return result, nil
}

func (s *Store) GetItemsByIDs(_ context.Context, ids []string) (map[string]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Item, len(ids))
	for _, id := range ids {
		if item, ok := s.itemsByID[id]; ok {
			result[id] = item
		}
	}
	return result, nil
}

func (s *Store) CreateAuditEntry(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.auditEntries = append(s.auditEntries, entry)
	return nil
}

func (s *Store) ListAuditEntries(_ context.Context, from, to time.Time, limit int) ([]domain.AuditEntry, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.AuditEntry, 0, limit)
	for i := len(s.auditEntries) - 1; i >= 0 && len(entries) < limit; i-- {
		entry := s.auditEntries[i]
		if inRange(entry.CreatedAt, from, to) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
