package stock

import (
	"errors"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementTypeIn represents an inbound receipt.
	MovementTypeIn MovementType = "IN"
	// MovementTypeReserve marks stock put on hold for an order.
	MovementTypeReserve MovementType = "RESERVE"
	// MovementTypeRelease returns reserved stock to the free pool.
	MovementTypeRelease MovementType = "RELEASE"
)

// Account summarises on-hand stock for a product variant. Accounts are
// created lazily the first time a variant is stocked.
type Account struct {
	VariantID        int64
	Quantity         float64
	ReservedQuantity float64
	AverageUnitCost  float64
	LastUnitCost     float64
	TotalValue       float64
	UpdatedAt        time.Time
}

// Movement models one ledger entry against an account.
type Movement struct {
	ID         int64        `json:"id"`
	Code       string       `json:"code"`
	Type       MovementType `json:"type"`
	VariantID  int64        `json:"variant_id"`
	Qty        float64      `json:"qty"`
	UnitCost   float64      `json:"unit_cost"`
	BalanceQty float64      `json:"balance_qty"`
	RefModule  string       `json:"ref_module,omitempty"`
	RefID      string       `json:"ref_id,omitempty"`
	Note       string       `json:"note,omitempty"`
	ActorID    int64        `json:"actor_id,omitempty"`
	PostedAt   time.Time    `json:"posted_at"`
}

// AddStockInput credits units to a variant account. UnitCost nil keeps the
// prior weighted average untouched.
type AddStockInput struct {
	Code      string
	VariantID int64
	Quantity  float64
	UnitCost  *float64
	Note      string
	ActorID   int64
	RefModule string
	RefID     string
}

// ReserveInput places (or releases) a hold on free stock.
type ReserveInput struct {
	Code      string
	VariantID int64
	Quantity  float64
	Note      string
	ActorID   int64
	RefModule string
	RefID     string
}

// MovementFilter filters ledger entries.
type MovementFilter struct {
	VariantID int64
	Type      MovementType
	From      time.Time
	To        time.Time
	Limit     int
}

// ErrInvalidQuantity indicates an invalid quantity.
var ErrInvalidQuantity = errors.New("stock: quantity must be positive")

// ErrInvalidUnitCost indicates an invalid cost value.
var ErrInvalidUnitCost = errors.New("stock: unit cost must be >= 0")

// ErrInsufficientStock triggered when a reservation exceeds free stock.
var ErrInsufficientStock = errors.New("stock: insufficient free quantity")

// ErrInsufficientReservation triggered when releasing more than is held.
var ErrInsufficientReservation = errors.New("stock: insufficient reserved quantity")

// ErrAccountNotFound indicates a missing account row.
var ErrAccountNotFound = errors.New("stock: account not found")
