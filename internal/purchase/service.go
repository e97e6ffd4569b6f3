package purchase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/padma-erp/padma-erp/internal/shared"
	"github.com/padma-erp/padma-erp/internal/stock"
)

// quantityEpsilon absorbs float drift when comparing received quantities
// against a line's effective quantity.
const quantityEpsilon = 1e-9

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListItems(ctx context.Context, orderID int64) ([]Item, error)
	ListOrders(ctx context.Context, filters ListFilters, limit, offset int) ([]OrderListItem, int, error)
}

// TxRepository exposes transactional operations used by the service. Stock
// returns a stock repository bound to the same database transaction so a
// receipt and its stock credits commit or roll back together.
type TxRepository interface {
	InsertOrder(ctx context.Context, order *PurchaseOrder) error
	InsertItem(ctx context.Context, item *Item) error
	GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdateOrder(ctx context.Context, order PurchaseOrder) error
	ListItemsForUpdate(ctx context.Context, orderID int64) ([]Item, error)
	UpdateItemShipping(ctx context.Context, itemID int64, shippingCost float64) error
	UpdateItemReceipt(ctx context.Context, item Item) error
	SetVariantLandedCost(ctx context.Context, variantID int64, cost float64) error
	Stock() stock.TxRepository
}

// StockPort is the slice of the stock service the receiving flow needs.
type StockPort interface {
	AddStockTx(ctx context.Context, tx stock.TxRepository, input stock.AddStockInput) (stock.Account, error)
}

// IdempotencyPort guards one-shot operations.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventsPort publishes integration events after a transition commits.
type EventsPort interface {
	ReceiptPosted(ctx context.Context, orderID int64, number string) error
}

// TransitionObserver records transition outcomes for monitoring.
type TransitionObserver interface {
	ObserveTransition(target string, err error)
}

// Service coordinates the purchase order workflow.
type Service struct {
	repo    RepositoryPort
	stock   StockPort
	idem    IdempotencyPort
	locks   *shared.OrderLocker
	audit   AuditPort
	events  EventsPort
	observe TransitionObserver
}

// NewService builds Service. locks, audit, events and observe may be nil;
// idem is required because receiving depends on it.
func NewService(repo RepositoryPort, stockSvc StockPort, idem IdempotencyPort, locks *shared.OrderLocker, audit AuditPort, events EventsPort, observe TransitionObserver) *Service {
	return &Service{
		repo:    repo,
		stock:   stockSvc,
		idem:    idem,
		locks:   locks,
		audit:   audit,
		events:  events,
		observe: observe,
	}
}

// CreateOrder opens a new order in DRAFT with its lines.
func (s *Service) CreateOrder(ctx context.Context, actorID int64, req CreateOrderRequest) (PurchaseOrder, error) {
	if req.SupplierID <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	if len(req.Items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: item quantity must be > 0", ErrValidation)
		}
		if it.ChinaPrice < 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: item price cannot be negative", ErrValidation)
		}
	}

	now := time.Now().UTC()
	order := PurchaseOrder{
		SupplierID: req.SupplierID,
		Status:     StatusDraft,
		Note:       req.Note,
		CreatedBy:  actorID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return err
		}
		for _, it := range req.Items {
			item := Item{
				OrderID:    order.ID,
				ProductID:  it.ProductID,
				VariantID:  it.VariantID,
				ChinaPrice: it.ChinaPrice,
				Quantity:   it.Quantity,
			}
			if err := tx.InsertItem(ctx, &item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}

	s.recordAudit(ctx, actorID, "purchase:create", order.ID, map[string]any{
		"supplier_id": order.SupplierID,
		"items":       len(req.Items),
	})
	return order, nil
}

// ConfirmPayment locks the exchange rate, assigns the order number, and moves
// DRAFT -> PAYMENT_CONFIRMED. Once set the rate never changes; every later
// cost computation reads it. Drafts carry no number until this point.
func (s *Service) ConfirmPayment(ctx context.Context, actorID, orderID int64, req ConfirmPaymentRequest) (PurchaseOrder, error) {
	if req.ExchangeRate <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: exchange rate must be > 0", ErrValidation)
	}
	return s.transition(ctx, actorID, orderID, StatusPaymentConfirmed, func(order *PurchaseOrder) error {
		if order.ExchangeRate != nil {
			return ErrExchangeRateLocked
		}
		rate := req.ExchangeRate
		order.ExchangeRate = &rate
		if order.Number == "" {
			order.Number = generateNumber("PO")
		}
		return nil
	}, map[string]any{"exchange_rate": req.ExchangeRate})
}

// MarkDispatched moves PAYMENT_CONFIRMED -> SUPPLIER_DISPATCHED.
func (s *Service) MarkDispatched(ctx context.Context, actorID, orderID int64, req DispatchRequest) (PurchaseOrder, error) {
	if err := requireField("courier_name", req.CourierName != ""); err != nil {
		return PurchaseOrder{}, err
	}
	if err := requireField("tracking_number", req.TrackingNumber != ""); err != nil {
		return PurchaseOrder{}, err
	}
	return s.transition(ctx, actorID, orderID, StatusSupplierDispatch, func(order *PurchaseOrder) error {
		order.CourierName = req.CourierName
		order.TrackingNumber = req.TrackingNumber
		return nil
	}, map[string]any{"courier": req.CourierName, "tracking": req.TrackingNumber})
}

// MarkShipped moves SUPPLIER_DISPATCHED -> SHIPPED_BD.
func (s *Service) MarkShipped(ctx context.Context, actorID, orderID int64, req ShipRequest) (PurchaseOrder, error) {
	if err := requireField("lot_number", req.LotNumber != ""); err != nil {
		return PurchaseOrder{}, err
	}
	return s.transition(ctx, actorID, orderID, StatusShippedBD, func(order *PurchaseOrder) error {
		order.LotNumber = req.LotNumber
		return nil
	}, map[string]any{"lot_number": req.LotNumber})
}

// MarkArrived moves SHIPPED_BD -> ARRIVED_BD and optionally records the
// known shipping cost per line.
func (s *Service) MarkArrived(ctx context.Context, actorID, orderID int64, req ArriveRequest) (PurchaseOrder, error) {
	for _, it := range req.Items {
		if it.ShippingCost < 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: shipping cost cannot be negative", ErrValidation)
		}
	}
	release, err := s.acquire(ctx, orderID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer release()

	var updated PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkTransition(order.Status, StatusArrivedBD); err != nil {
			return err
		}
		if len(req.Items) > 0 {
			items, err := tx.ListItemsForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			byID := make(map[int64]Item, len(items))
			for _, it := range items {
				byID[it.ID] = it
			}
			for _, upd := range req.Items {
				if _, ok := byID[upd.ItemID]; !ok {
					return fmt.Errorf("%w: item %d does not belong to order %d", ErrValidation, upd.ItemID, orderID)
				}
				if err := tx.UpdateItemShipping(ctx, upd.ItemID, upd.ShippingCost); err != nil {
					return err
				}
			}
		}
		order.Status = StatusArrivedBD
		order.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	s.observeTransition(StatusArrivedBD, err)
	if err != nil {
		return PurchaseOrder{}, err
	}

	s.recordAudit(ctx, actorID, "purchase:arrive", orderID, map[string]any{
		"number":        updated.Number,
		"items_updated": len(req.Items),
	})
	return updated, nil
}

// MarkInTransit moves ARRIVED_BD -> IN_TRANSIT_BOGURA.
func (s *Service) MarkInTransit(ctx context.Context, actorID, orderID int64, req TransitRequest) (PurchaseOrder, error) {
	if err := requireField("bd_courier_tracking", req.BDCourierTracking != ""); err != nil {
		return PurchaseOrder{}, err
	}
	return s.transition(ctx, actorID, orderID, StatusInTransitBogura, func(order *PurchaseOrder) error {
		order.BDCourierTracking = req.BDCourierTracking
		return nil
	}, map[string]any{"bd_courier_tracking": req.BDCourierTracking})
}

// ReceiveOrder moves IN_TRANSIT_BOGURA -> RECEIVED_HUB. It runs the landed
// cost allocation for every line, credits stock per received variant at the
// final unit cost, and stamps the variant's landed cost. All of it happens
// in one database transaction guarded by an idempotency key, so a receipt
// either posts completely or not at all.
func (s *Service) ReceiveOrder(ctx context.Context, actorID, orderID int64, req ReceiveRequest) (PurchaseOrder, error) {
	if req.TotalWeight <= 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: total weight must be > 0", ErrValidation)
	}
	if req.ExtraCostGlobal < 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: extra cost cannot be negative", ErrValidation)
	}
	if len(req.Items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: receipt items required", ErrValidation)
	}

	release, err := s.acquire(ctx, orderID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer release()

	current, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return PurchaseOrder{}, err
	}

	idemKey := fmt.Sprintf("PO-RECEIVE:%s", current.Number)
	if err := s.idem.CheckAndInsert(ctx, idemKey, "purchase"); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return PurchaseOrder{}, fmt.Errorf("%w: order %s already received", ErrIllegalTransition, current.Number)
		}
		return PurchaseOrder{}, err
	}

	var updated PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkTransition(order.Status, StatusReceivedHub); err != nil {
			return err
		}
		if order.ExchangeRate == nil {
			return requireField("exchange_rate", false)
		}

		items, err := tx.ListItemsForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		reqByItem := make(map[int64]ReceiveItemInput, len(req.Items))
		for _, ri := range req.Items {
			if _, dup := reqByItem[ri.ItemID]; dup {
				return fmt.Errorf("%w: duplicate receipt entry for item %d", ErrValidation, ri.ItemID)
			}
			reqByItem[ri.ItemID] = ri
		}

		var totalOrdered float64
		for _, it := range items {
			totalOrdered += it.Quantity
		}

		for _, it := range items {
			ri, ok := reqByItem[it.ID]
			if !ok {
				return fmt.Errorf("%w: item %d missing from receipt", ErrValidation, it.ID)
			}
			delete(reqByItem, it.ID)

			alloc, err := Allocate(AllocationInput{
				ChinaPrice:           it.ChinaPrice,
				ExchangeRate:         *order.ExchangeRate,
				Quantity:             it.Quantity,
				LostQuantity:         ri.LostQuantity,
				ShippingCost:         ri.ShippingCost,
				ExtraCostGlobal:      req.ExtraCostGlobal,
				TotalOrderedQuantity: totalOrdered,
			})
			if err != nil {
				return fmt.Errorf("item %d: %w", it.ID, err)
			}

			received := ri.ReceivedVariants
			if len(received) == 0 && it.VariantID > 0 && alloc.EffectiveQuantity > 0 {
				received = []ReceivedVariantInput{{VariantID: it.VariantID, Quantity: alloc.EffectiveQuantity}}
			}
			var receivedQty float64
			for _, rv := range received {
				if rv.Quantity <= 0 {
					return fmt.Errorf("%w: received quantity must be > 0", ErrValidation)
				}
				receivedQty += rv.Quantity
			}
			if math.Abs(receivedQty-alloc.EffectiveQuantity) > quantityEpsilon {
				return fmt.Errorf("%w: item %d received %.3f of %.3f effective", ErrReceiptQuantityMismatch, it.ID, receivedQty, alloc.EffectiveQuantity)
			}

			it.ShippingCost = ri.ShippingCost
			it.LostQuantity = ri.LostQuantity
			cost := alloc.FinalUnitCost
			it.FinalUnitCost = &cost
			if err := tx.UpdateItemReceipt(ctx, it); err != nil {
				return err
			}

			for _, rv := range received {
				if err := tx.SetVariantLandedCost(ctx, rv.VariantID, cost); err != nil {
					return err
				}
				unitCost := cost
				_, err := s.stock.AddStockTx(ctx, tx.Stock(), stock.AddStockInput{
					VariantID: rv.VariantID,
					Quantity:  rv.Quantity,
					UnitCost:  &unitCost,
					Note:      fmt.Sprintf("receipt %s", order.Number),
					ActorID:   actorID,
					RefModule: "purchase",
				})
				if err != nil {
					return err
				}
			}
		}
		for itemID := range reqByItem {
			return fmt.Errorf("%w: item %d does not belong to order %d", ErrValidation, itemID, orderID)
		}

		order.Status = StatusReceivedHub
		order.ExtraCostGlobal = req.ExtraCostGlobal
		order.TotalWeight = req.TotalWeight
		order.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	s.observeTransition(StatusReceivedHub, err)
	if err != nil {
		_ = s.idem.Delete(ctx, idemKey)
		return PurchaseOrder{}, err
	}

	s.recordAudit(ctx, actorID, "purchase:receive", orderID, map[string]any{
		"number":       updated.Number,
		"extra_cost":   req.ExtraCostGlobal,
		"total_weight": req.TotalWeight,
	})
	if s.events != nil {
		// the receipt already committed, event delivery is best effort
		_ = s.events.ReceiptPosted(ctx, orderID, updated.Number)
	}
	return updated, nil
}

// CompleteOrder moves RECEIVED_HUB -> COMPLETED. Every line has to carry a
// final unit cost from the receipt before the order can close.
func (s *Service) CompleteOrder(ctx context.Context, actorID, orderID int64) (PurchaseOrder, error) {
	release, err := s.acquire(ctx, orderID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer release()

	var updated PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkTransition(order.Status, StatusCompleted); err != nil {
			return err
		}
		items, err := tx.ListItemsForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if it.FinalUnitCost == nil {
				return fmt.Errorf("%w: item %d has no final unit cost", ErrIllegalTransition, it.ID)
			}
		}
		order.Status = StatusCompleted
		order.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	s.observeTransition(StatusCompleted, err)
	if err != nil {
		return PurchaseOrder{}, err
	}

	s.recordAudit(ctx, actorID, "purchase:complete", orderID, map[string]any{"number": updated.Number})
	return updated, nil
}

// MarkLost moves any non-terminal order to LOST.
func (s *Service) MarkLost(ctx context.Context, actorID, orderID int64, req MarkLostRequest) (PurchaseOrder, error) {
	return s.transition(ctx, actorID, orderID, StatusLost, func(order *PurchaseOrder) error {
		if req.Reason != "" {
			if order.Note != "" {
				order.Note += "\n"
			}
			order.Note += "lost: " + req.Reason
		}
		return nil
	}, map[string]any{"reason": req.Reason})
}

// GetOrder returns the order with its lines.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (OrderResponse, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return OrderResponse{}, err
	}
	items, err := s.repo.ListItems(ctx, orderID)
	if err != nil {
		return OrderResponse{}, err
	}
	return OrderResponse{Order: order, Items: items}, nil
}

// ListOrders pages order summaries.
func (s *Service) ListOrders(ctx context.Context, req ListRequest) (ListResponse, error) {
	if req.Status != "" && !Status(req.Status).IsValid() {
		return ListResponse{}, fmt.Errorf("%w: unknown status %q", ErrValidation, req.Status)
	}
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}
	filters := ListFilters{
		Status:     Status(req.Status),
		SupplierID: req.SupplierID,
		Search:     req.Search,
		SortBy:     req.SortBy,
		SortDir:    req.SortDir,
	}
	orders, total, err := s.repo.ListOrders(ctx, filters, limit, offset)
	if err != nil {
		return ListResponse{}, err
	}
	return ListResponse{Orders: orders, Total: total, Limit: limit, Offset: offset}, nil
}

// transition applies the simple single-status moves that only touch the
// order row.
func (s *Service) transition(ctx context.Context, actorID, orderID int64, target Status, mutate func(*PurchaseOrder) error, meta map[string]any) (PurchaseOrder, error) {
	release, err := s.acquire(ctx, orderID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer release()

	var updated PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkTransition(order.Status, target); err != nil {
			return err
		}
		if err := mutate(&order); err != nil {
			return err
		}
		order.Status = target
		order.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	s.observeTransition(target, err)
	if err != nil {
		return PurchaseOrder{}, err
	}

	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = updated.Number
	s.recordAudit(ctx, actorID, "purchase:"+string(target), orderID, meta)
	return updated, nil
}

func (s *Service) acquire(ctx context.Context, orderID int64) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	return s.locks.Acquire(ctx, orderID)
}

func (s *Service) observeTransition(target Status, err error) {
	if s.observe == nil {
		return
	}
	s.observe.ObserveTransition(string(target), err)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase_order",
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
