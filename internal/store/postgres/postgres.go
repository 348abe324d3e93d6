// Package postgres implements store.Repository on PostgreSQL through the
// pgx stdlib driver. The expenditure write path runs in a serializable
// transaction with a conditional stock decrement, so concurrent writes
// against one item can never drive available_stock below zero.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"messbook/backend/internal/domain"
	"messbook/backend/internal/store"
	"messbook/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, available_stock, cost_per_unit, created_at, updated_at
		FROM items
		ORDER BY name
	`)
	if err != nil {
		return nil, store.Storage("list items", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 64)
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.AvailableStock, &item.CostPerUnit, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, store.Storage("scan item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage("list items", err)
	}

	return items, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	var item domain.Item
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, available_stock, cost_per_unit, created_at, updated_at
		FROM items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.Name, &item.AvailableStock, &item.CostPerUnit, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage("get item", err)
	}
	return &item, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if strings.TrimSpace(item.Name) == "" || item.AvailableStock < 0 || item.CostPerUnit < 0 {
		return nil, store.ErrValidation
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, available_stock, cost_per_unit, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, item.ID, item.Name, item.AvailableStock, item.CostPerUnit, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, store.Storage("create item", err)
	}

	created := item
	return &created, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if strings.TrimSpace(item.Name) == "" || item.AvailableStock < 0 || item.CostPerUnit < 0 {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET name = $2, available_stock = $3, cost_per_unit = $4, updated_at = now()
		WHERE id = $1
	`, item.ID, item.Name, item.AvailableStock, item.CostPerUnit)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, store.Storage("update item", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, store.Storage("update item", err)
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetItem(ctx, item.ID)
}

func (s *Store) RecordExpenditure(ctx context.Context, exp domain.Expenditure) (*domain.Expenditure, error) {
	if exp.ItemID == "" || exp.UserID == "" || exp.QuantityUsed < 1 {
		return nil, store.ErrValidation
	}
	if exp.ID == "" {
		exp.ID = xid.New("exp")
	}
	if exp.Date.IsZero() {
		exp.Date = time.Now()
	}
	exp.Finalized = false

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, store.Storage("begin expenditure tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Conditional decrement: zero rows affected means either the item does
	// not exist or the stock does not cover the quantity. Disambiguate with
	// a locked read inside the same transaction.
	res, err := tx.ExecContext(ctx, `
		UPDATE items
		SET available_stock = available_stock - $1, updated_at = now()
		WHERE id = $2 AND available_stock >= $1
	`, exp.QuantityUsed, exp.ItemID)
	if err != nil {
		return nil, store.Storage("decrement stock", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, store.Storage("decrement stock", err)
	}
	if affected == 0 {
		var available int
		err := tx.QueryRowContext(ctx, `
			SELECT available_stock FROM items WHERE id = $1 FOR UPDATE
		`, exp.ItemID).Scan(&available)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, store.Storage("read stock", err)
		}
		return nil, &store.InsufficientStockError{Available: available}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO expenditures (id, date, item_id, quantity_used, user_id, finalized)
		VALUES ($1,$2,$3,$4,$5,false)
	`, exp.ID, exp.Date, exp.ItemID, exp.QuantityUsed, exp.UserID)
	if err != nil {
		return nil, store.Storage("insert expenditure", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, store.Storage("commit expenditure", err)
	}

	created := exp
	return &created, nil
}

func (s *Store) ListExpenditures(ctx context.Context, from, to time.Time) ([]domain.Expenditure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, item_id, quantity_used, user_id, finalized
		FROM expenditures
		WHERE ($1::timestamptz IS NULL OR date >= $1)
			AND ($2::timestamptz IS NULL OR date <= $2)
		ORDER BY date
	`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, store.Storage("list expenditures", err)
	}
	defer rows.Close()

	records := make([]domain.Expenditure, 0, 64)
	for rows.Next() {
		var exp domain.Expenditure
		if err := rows.Scan(&exp.ID, &exp.Date, &exp.ItemID, &exp.QuantityUsed, &exp.UserID, &exp.Finalized); err != nil {
			return nil, store.Storage("scan expenditure", err)
		}
		records = append(records, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage("list expenditures", err)
	}

	return records, nil
}

func (s *Store) FinalizeExpenditures(ctx context.Context, from, to time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenditures
		SET finalized = true
		WHERE finalized = false AND date >= $1 AND date <= $2
	`, from, to)
	if err != nil {
		return 0, store.Storage("finalize expenditures", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, store.Storage("finalize expenditures", err)
	}
	if affected == 0 {
		return 0, store.ErrNoPendingRecords
	}
	return int(affected), nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.Name == "" || user.PasswordHash == "" {
		return nil, store.ErrValidation
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	user.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateName
		}
		return nil, store.Storage("create user", err)
	}

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, store.Storage("get user", err)
	}
	return &user, nil
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]domain.UserAccount, error) {
	result := make(map[string]domain.UserAccount, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, store.Storage("get users", err)
	}
	defer rows.Close()

	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
			return nil, store.Storage("scan user", err)
		}
		result[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage("get users", err)
	}

	return result, nil
}

func (s *Store) GetItemsByIDs(ctx context.Context, ids []string) (map[string]domain.Item, error) {
	result := make(map[string]domain.Item, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, available_stock, cost_per_unit, created_at, updated_at
		FROM items
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, store.Storage("get items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.AvailableStock, &item.CostPerUnit, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, store.Storage("scan item", err)
		}
		result[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage("get items", err)
	}

	return result, nil
}

func (s *Store) CreateAuditEntry(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorID, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return store.Storage("create audit entry", err)
}

func (s *Store) ListAuditEntries(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditEntry, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_entries
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			AND ($2::timestamptz IS NULL OR created_at <= $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, store.Storage("list audit entries", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0, limit)
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, store.Storage("scan audit entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage("list audit entries", err)
	}
	return entries, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
