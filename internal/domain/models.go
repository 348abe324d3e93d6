package domain

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Item is a stocked consumable tracked by name, quantity on hand and unit cost.
type Item struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	AvailableStock int       `json:"available_stock"`
	CostPerUnit    float64   `json:"cost_per_unit"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PublicItem is the non-admin projection of an Item. It deliberately has no
// cost field: a payload built from PublicItem can never leak cost_per_unit.
type PublicItem struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	AvailableStock int    `json:"available_stock"`
}

type ItemCreateRequest struct {
	Name           string  `json:"name"`
	AvailableStock int     `json:"available_stock"`
	CostPerUnit    float64 `json:"cost_per_unit"`
}

// ItemUpdateRequest is the allow-list of mutable item fields. Anything not
// listed here (id, timestamps) cannot be overwritten through UpdateItem.
type ItemUpdateRequest struct {
	Name           *string  `json:"name,omitempty"`
	AvailableStock *int     `json:"available_stock,omitempty"`
	CostPerUnit    *float64 `json:"cost_per_unit,omitempty"`
}

// Expenditure is one consumption event: an item, a quantity, a day and who
// recorded it. The date is always taken from the server clock at write time.
type Expenditure struct {
	ID           string    `json:"id"`
	Date         time.Time `json:"date"`
	ItemID       string    `json:"item_id"`
	QuantityUsed int       `json:"quantity_used"`
	UserID       string    `json:"user_id"`
	Finalized    bool      `json:"finalized"`
}

type ExpenditureCreateRequest struct {
	ItemID       string `json:"item_id"`
	QuantityUsed int    `json:"quantity_used"`
}

// ExpenditureDetail is an Expenditure with its item and user references
// resolved for display. Resolution is best-effort: a dangling reference
// leaves the name empty instead of failing the whole query.
type ExpenditureDetail struct {
	Expenditure
	ItemName    string  `json:"item_name"`
	CostPerUnit float64 `json:"cost_per_unit"`
	UserName    string  `json:"user_name"`
}

// ExportRow is one denormalized line of the admin export.
type ExportRow struct {
	Date         time.Time `json:"date"`
	ItemName     string    `json:"item_name"`
	QuantityUsed int       `json:"quantity_used"`
	CostPerUnit  float64   `json:"cost_per_unit"`
	TotalCost    float64   `json:"total_cost"`
	UserName     string    `json:"user_name"`
}

type FinalizeRequest struct {
	Date string `json:"date,omitempty"`
}

type FinalizeResponse struct {
	Date           string `json:"date"`
	FinalizedCount int    `json:"finalized_count"`
}

// Actor is the verified identity attached to every core call. It is produced
// once by the auth layer and passed explicitly, never pulled untyped from a
// request.
type Actor struct {
	UserID string
	Name   string
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type RegisterRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	AdminCode string `json:"admin_code,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	User        UserProfile `json:"user"`
	ExpiresAt   string      `json:"expires_at"`
}

type UserProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UserAccount is the internal persistence model for auth credentials.
type UserAccount struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type AuditEntry struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}
