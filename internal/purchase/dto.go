package purchase

// CreateOrderRequest opens a new order in DRAFT.
type CreateOrderRequest struct {
	SupplierID int64             `json:"supplier_id" validate:"required,gt=0"`
	Note       string            `json:"note,omitempty"`
	Items      []CreateItemInput `json:"items" validate:"required,min=1,dive"`
}

// CreateItemInput describes one ordered line.
type CreateItemInput struct {
	ProductID  int64   `json:"product_id" validate:"required,gt=0"`
	VariantID  int64   `json:"product_variant_id,omitempty" validate:"gte=0"`
	ChinaPrice float64 `json:"china_price" validate:"gte=0"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
}

// ConfirmPaymentRequest moves DRAFT -> PAYMENT_CONFIRMED and locks the rate.
type ConfirmPaymentRequest struct {
	ExchangeRate float64 `json:"exchange_rate" validate:"required,gt=0"`
}

// DispatchRequest moves PAYMENT_CONFIRMED -> SUPPLIER_DISPATCHED.
type DispatchRequest struct {
	CourierName    string `json:"courier_name" validate:"required,max=200"`
	TrackingNumber string `json:"tracking_number" validate:"required,max=100"`
}

// ShipRequest moves SUPPLIER_DISPATCHED -> SHIPPED_BD.
type ShipRequest struct {
	LotNumber string `json:"lot_number" validate:"required,max=100"`
}

// ItemShippingInput updates a line's shipping cost while goods clear customs.
type ItemShippingInput struct {
	ItemID       int64   `json:"po_item_id" validate:"required,gt=0"`
	ShippingCost float64 `json:"shipping_cost" validate:"gte=0"`
}

// ArriveRequest moves SHIPPED_BD -> ARRIVED_BD. Shipping updates are optional.
type ArriveRequest struct {
	Items []ItemShippingInput `json:"items,omitempty" validate:"omitempty,dive"`
}

// TransitRequest moves ARRIVED_BD -> IN_TRANSIT_BOGURA.
type TransitRequest struct {
	BDCourierTracking string `json:"bd_courier_tracking" validate:"required,max=100"`
}

// ReceivedVariantInput splits a line's surviving units into concrete SKUs.
type ReceivedVariantInput struct {
	VariantID int64   `json:"variant_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
}

// ReceiveItemInput is the per-line receipt payload.
type ReceiveItemInput struct {
	ItemID           int64                  `json:"po_item_id" validate:"required,gt=0"`
	ShippingCost     float64                `json:"shipping_cost" validate:"gte=0"`
	LostQuantity     float64                `json:"lost_quantity" validate:"gte=0"`
	ReceivedVariants []ReceivedVariantInput `json:"received_variants" validate:"omitempty,dive"`
}

// ReceiveRequest moves IN_TRANSIT_BOGURA -> RECEIVED_HUB and runs the
// landed cost allocation for every line.
type ReceiveRequest struct {
	ExtraCostGlobal float64            `json:"extra_cost_global" validate:"gte=0"`
	TotalWeight     float64            `json:"total_weight" validate:"required,gt=0"`
	Items           []ReceiveItemInput `json:"items" validate:"required,min=1,dive"`
	ActorID         int64              `json:"actor_id,omitempty"`
}

// MarkLostRequest moves any non-terminal order to LOST.
type MarkLostRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// ListRequest narrows and pages order listings.
type ListRequest struct {
	Status     string `json:"status,omitempty"`
	SupplierID int64  `json:"supplier_id,omitempty"`
	Search     string `json:"search,omitempty"`
	SortBy     string `json:"sort_by,omitempty"`
	SortDir    string `json:"sort_dir,omitempty"`
	Limit      int    `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int    `json:"offset" validate:"gte=0"`
}

// OrderResponse is the detail projection returned by the API.
type OrderResponse struct {
	Order PurchaseOrder `json:"order"`
	Items []Item        `json:"items"`
}

// ListResponse pages order summaries.
type ListResponse struct {
	Orders []OrderListItem `json:"orders"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}
