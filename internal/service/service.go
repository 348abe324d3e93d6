package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"messbook/backend/internal/cache"
	"messbook/backend/internal/dayspan"
	"messbook/backend/internal/domain"
	"messbook/backend/internal/store"
	"messbook/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo            store.Repository
	catalogCache    cache.CatalogCache
	catalogCacheTTL time.Duration
}

func New(repo store.Repository, catalogCache cache.CatalogCache, catalogCacheTTL time.Duration) *Service {
	if catalogCache == nil {
		catalogCache = cache.NoopCatalogCache{}
	}
	if catalogCacheTTL <= 0 {
		catalogCacheTTL = 30 * time.Second
	}

	return &Service{
		repo:            repo,
		catalogCache:    catalogCache,
		catalogCacheTTL: catalogCacheTTL,
	}
}

// ItemListing is the role-projected catalog. Exactly one slice is set; the
// public variant structurally cannot carry cost_per_unit.
type ItemListing struct {
	Admin  []domain.Item
	Public []domain.PublicItem
}

// Payload returns whichever projection is populated, for serialization.
func (l ItemListing) Payload() any {
	if l.Admin != nil {
		return l.Admin
	}
	return l.Public
}

// ProjectItems applies the role-based field filter. It is a pure function so
// the projection contract is testable without any transport.
func ProjectItems(items []domain.Item, role string) ItemListing {
	if role == domain.RoleAdmin {
		return ItemListing{Admin: items}
	}
	public := make([]domain.PublicItem, 0, len(items))
	for _, item := range items {
		public = append(public, domain.PublicItem{
			ID:             item.ID,
			Name:           item.Name,
			AvailableStock: item.AvailableStock,
		})
	}
	return ItemListing{Public: public}
}

func (s *Service) ListItems(ctx context.Context) (ItemListing, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ItemListing{}, store.ErrUnauthorized
	}

	items, hit, err := s.catalogCache.Get(ctx)
	if err != nil {
		log.Printf("[service] WARN: catalog cache read failed: %v", err)
	}
	if !hit {
		items, err = s.repo.ListItems(ctx)
		if err != nil {
			return ItemListing{}, err
		}
		if err := s.catalogCache.Set(ctx, items, s.catalogCacheTTL); err != nil {
			log.Printf("[service] WARN: catalog cache write failed: %v", err)
		}
	}

	return ProjectItems(items, actor.Role), nil
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Item{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Item{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if req.AvailableStock < 0 {
		return domain.Item{}, fmt.Errorf("%w: available_stock must not be negative", store.ErrValidation)
	}
	if req.CostPerUnit < 0 {
		return domain.Item{}, fmt.Errorf("%w: cost_per_unit must not be negative", store.ErrValidation)
	}

	created, err := s.repo.CreateItem(ctx, domain.Item{
		Name:           req.Name,
		AvailableStock: req.AvailableStock,
		CostPerUnit:    req.CostPerUnit,
	})
	if err != nil {
		return domain.Item{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, actor, "item_create", "item", created.ID, fmt.Sprintf("name=%s,stock=%d,cost=%.2f", created.Name, created.AvailableStock, created.CostPerUnit))

	return *created, nil
}

func (s *Service) UpdateItem(ctx context.Context, id string, req domain.ItemUpdateRequest) (domain.Item, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Item{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Item{}, fmt.Errorf("%w: item id is required", store.ErrValidation)
	}

	existing, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}

	// Partial merge over the allow-listed fields only. The id and the
	// timestamps are not reachable from the request type.
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Item{}, fmt.Errorf("%w: name must not be empty", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.AvailableStock != nil {
		if *req.AvailableStock < 0 {
			return domain.Item{}, fmt.Errorf("%w: available_stock must not be negative", store.ErrValidation)
		}
		updated.AvailableStock = *req.AvailableStock
	}
	if req.CostPerUnit != nil {
		if *req.CostPerUnit < 0 {
			return domain.Item{}, fmt.Errorf("%w: cost_per_unit must not be negative", store.ErrValidation)
		}
		updated.CostPerUnit = *req.CostPerUnit
	}

	saved, err := s.repo.UpdateItem(ctx, updated)
	if err != nil {
		return domain.Item{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, actor, "item_update", "item", saved.ID, fmt.Sprintf("name=%s,stock=%d,cost=%.2f", saved.Name, saved.AvailableStock, saved.CostPerUnit))

	return *saved, nil
}

// RecordExpenditure is the ledger write path. The date is always the server
// clock at write time; clients cannot backdate. The stock decrement and the
// record insert are one unit of work in the repository.
func (s *Service) RecordExpenditure(ctx context.Context, req domain.ExpenditureCreateRequest) (domain.Expenditure, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Expenditure{}, store.ErrUnauthorized
	}

	req.ItemID = strings.TrimSpace(req.ItemID)
	if req.ItemID == "" {
		return domain.Expenditure{}, fmt.Errorf("%w: item_id is required", store.ErrValidation)
	}
	if req.QuantityUsed < 1 {
		return domain.Expenditure{}, fmt.Errorf("%w: quantity_used must be positive", store.ErrValidation)
	}

	created, err := s.repo.RecordExpenditure(ctx, domain.Expenditure{
		ID:           xid.New("exp"),
		Date:         time.Now(),
		ItemID:       req.ItemID,
		QuantityUsed: req.QuantityUsed,
		UserID:       actor.UserID,
	})
	if err != nil {
		return domain.Expenditure{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, actor, "expenditure_record", "expenditure", created.ID, fmt.Sprintf("item=%s,qty=%d", created.ItemID, created.QuantityUsed))

	return *created, nil
}

// QueryExpenditures returns one day's records with item and user references
// resolved. An empty date means today.
func (s *Service) QueryExpenditures(ctx context.Context, date string) ([]domain.ExpenditureDetail, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	span, err := dayspan.Parse(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	records, err := s.repo.ListExpenditures(ctx, span.Start, span.End)
	if err != nil {
		return nil, err
	}

	return s.resolveDetails(ctx, records)
}

// FinalizeDay locks every pending record of the given day. An empty date
// means today. A day with nothing pending is reported as an error so callers
// can tell "already finalized" apart from success.
func (s *Service) FinalizeDay(ctx context.Context, date string) (domain.FinalizeResponse, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.FinalizeResponse{}, err
	}

	span, err := dayspan.Parse(date)
	if err != nil {
		return domain.FinalizeResponse{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	count, err := s.repo.FinalizeExpenditures(ctx, span.Start, span.End)
	if err != nil {
		return domain.FinalizeResponse{}, err
	}

	s.logAudit(ctx, actor, "day_finalize", "expenditure_day", span.Date(), fmt.Sprintf("finalized=%d", count))

	return domain.FinalizeResponse{
		Date:           span.Date(),
		FinalizedCount: count,
	}, nil
}

// ExportExpenditures flattens records into denormalized export rows. With an
// empty date every record is exported; a dangling item or user reference
// yields empty name fields instead of failing the export.
func (s *Service) ExportExpenditures(ctx context.Context, date string) ([]domain.ExportRow, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	var from, to time.Time
	if strings.TrimSpace(date) != "" {
		span, err := dayspan.Parse(date)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
		from, to = span.Start, span.End
	}

	records, err := s.repo.ListExpenditures(ctx, from, to)
	if err != nil {
		return nil, err
	}

	details, err := s.resolveDetails(ctx, records)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.ExportRow, 0, len(details))
	for _, detail := range details {
		rows = append(rows, domain.ExportRow{
			Date:         detail.Date,
			ItemName:     detail.ItemName,
			QuantityUsed: detail.QuantityUsed,
			CostPerUnit:  detail.CostPerUnit,
			TotalCost:    float64(detail.QuantityUsed) * detail.CostPerUnit,
			UserName:     detail.UserName,
		})
	}

	s.logAudit(ctx, actor, "expenditure_export", "expenditure", "", fmt.Sprintf("date=%s,rows=%d", strings.TrimSpace(date), len(rows)))

	return rows, nil
}

func (s *Service) ListAuditEntries(ctx context.Context, date string, limit int) ([]domain.AuditEntry, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	span, err := dayspan.Parse(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	return s.repo.ListAuditEntries(ctx, span.Start, span.End, limit)
}

func (s *Service) resolveDetails(ctx context.Context, records []domain.Expenditure) ([]domain.ExpenditureDetail, error) {
	itemIDs := make([]string, 0, len(records))
	userIDs := make([]string, 0, len(records))
	seenItems := make(map[string]struct{}, len(records))
	seenUsers := make(map[string]struct{}, len(records))
	for _, exp := range records {
		if _, ok := seenItems[exp.ItemID]; !ok {
			seenItems[exp.ItemID] = struct{}{}
			itemIDs = append(itemIDs, exp.ItemID)
		}
		if _, ok := seenUsers[exp.UserID]; !ok {
			seenUsers[exp.UserID] = struct{}{}
			userIDs = append(userIDs, exp.UserID)
		}
	}

	items, err := s.repo.GetItemsByIDs(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	details := make([]domain.ExpenditureDetail, 0, len(records))
	for _, exp := range records {
		detail := domain.ExpenditureDetail{Expenditure: exp}
		if item, ok := items[exp.ItemID]; ok {
			detail.ItemName = item.Name
			detail.CostPerUnit = item.CostPerUnit
		}
		if user, ok := users[exp.UserID]; ok {
			detail.UserName = user.Name
		}
		details = append(details, detail)
	}
	return details, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || !actor.IsAdmin() {
		return domain.Actor{}, fmt.Errorf("%w: admin role required", store.ErrUnauthorized)
	}
	return actor, nil
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalogCache.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: catalog cache invalidation failed: %v", err)
	}
}

func (s *Service) logAudit(ctx context.Context, actor domain.Actor, action string, entityType string, entityID string, detail string) {
	if err := s.repo.CreateAuditEntry(ctx, domain.AuditEntry{
		ID:         xid.New("audit"),
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit entry action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
