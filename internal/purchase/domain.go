package purchase

import (
	"errors"
	"time"
)

// Status enumerates the purchase order lifecycle. The happy path is a strict
// linear chain; LOST is absorbing and reachable from any non-terminal status.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusPaymentConfirmed Status = "PAYMENT_CONFIRMED"
	StatusSupplierDispatch Status = "SUPPLIER_DISPATCHED"
	StatusShippedBD        Status = "SHIPPED_BD"
	StatusArrivedBD        Status = "ARRIVED_BD"
	StatusInTransitBogura  Status = "IN_TRANSIT_BOGURA"
	StatusReceivedHub      Status = "RECEIVED_HUB"
	StatusCompleted        Status = "COMPLETED"
	StatusLost             Status = "LOST"
)

// IsValid checks whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPaymentConfirmed, StatusSupplierDispatch, StatusShippedBD,
		StatusArrivedBD, StatusInTransitBogura, StatusReceivedHub, StatusCompleted, StatusLost:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusLost
}

// PurchaseOrder models an international procurement order.
type PurchaseOrder struct {
	ID                int64     `json:"id"`
	Number            string    `json:"number"`
	SupplierID        int64     `json:"supplier_id"`
	Status            Status    `json:"status"`
	ExchangeRate      *float64  `json:"exchange_rate,omitempty"`
	ExtraCostGlobal   float64   `json:"extra_cost_global"`
	TotalWeight       float64   `json:"total_weight"`
	CourierName       string    `json:"courier_name,omitempty"`
	TrackingNumber    string    `json:"tracking_number,omitempty"`
	LotNumber         string    `json:"lot_number,omitempty"`
	BDCourierTracking string    `json:"bd_courier_tracking,omitempty"`
	Note              string    `json:"note,omitempty"`
	CreatedBy         int64     `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Item represents one product line within a purchase order.
type Item struct {
	ID            int64    `json:"id"`
	OrderID       int64    `json:"po_id"`
	ProductID     int64    `json:"product_id"`
	VariantID     int64    `json:"product_variant_id,omitempty"`
	ChinaPrice    float64  `json:"china_price"`
	Quantity      float64  `json:"quantity"`
	ShippingCost  float64  `json:"shipping_cost"`
	LostQuantity  float64  `json:"lost_quantity"`
	FinalUnitCost *float64 `json:"final_unit_cost,omitempty"`
}

// EffectiveQuantity returns the surviving units of the line.
func (i Item) EffectiveQuantity() float64 {
	return i.Quantity - i.LostQuantity
}

// OrderListItem is the list-view projection with supplier name and value.
type OrderListItem struct {
	ID           int64     `json:"id"`
	Number       string    `json:"number"`
	SupplierID   int64     `json:"supplier_id"`
	SupplierName string    `json:"supplier_name,omitempty"`
	Status       Status    `json:"status"`
	ItemCount    int       `json:"item_count"`
	TotalOrdered float64   `json:"total_ordered"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListFilters narrows order listings.
type ListFilters struct {
	Status     Status
	SupplierID int64
	Search     string
	SortBy     string
	SortDir    string
}

var (
	// ErrIllegalTransition occurs when the target is not the defined next
	// status for the order's current status.
	ErrIllegalTransition = errors.New("purchase: illegal status transition")
	// ErrMissingField indicates a stage-required field is absent.
	ErrMissingField = errors.New("purchase: missing required field")
	// ErrInvalidAllocationInput indicates landed cost inputs are unusable.
	ErrInvalidAllocationInput = errors.New("purchase: invalid allocation input")
	// ErrReceiptQuantityMismatch indicates received variant quantities do not
	// add up to the line's effective quantity.
	ErrReceiptQuantityMismatch = errors.New("purchase: receipt quantities do not match effective quantity")
	// ErrExchangeRateLocked indicates an attempt to change a confirmed rate.
	ErrExchangeRateLocked = errors.New("purchase: exchange rate is immutable once confirmed")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("purchase: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("purchase: invalid input")
)
