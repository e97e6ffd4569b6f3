package purchase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/padma-erp/padma-erp/internal/shared"
	"github.com/padma-erp/padma-erp/internal/stock"
)

// fakeRepo keeps orders, items, variant costs and stock balances in memory.
// WithTx snapshots everything up front and restores it when the callback
// fails, mirroring a database rollback across both modules.
type fakeRepo struct {
	orders       map[int64]PurchaseOrder
	items        map[int64]Item
	variantCosts map[int64]float64
	accounts     map[int64]stock.Account
	movements    []stock.Movement
	nextOrderID  int64
	nextItemID   int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders:       map[int64]PurchaseOrder{},
		items:        map[int64]Item{},
		variantCosts: map[int64]float64{},
		accounts:     map[int64]stock.Account{},
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	orders := make(map[int64]PurchaseOrder, len(f.orders))
	for k, v := range f.orders {
		orders[k] = v
	}
	items := make(map[int64]Item, len(f.items))
	for k, v := range f.items {
		items[k] = v
	}
	costs := make(map[int64]float64, len(f.variantCosts))
	for k, v := range f.variantCosts {
		costs[k] = v
	}
	accounts := make(map[int64]stock.Account, len(f.accounts))
	for k, v := range f.accounts {
		accounts[k] = v
	}
	movements := append([]stock.Movement(nil), f.movements...)

	if err := fn(ctx, f); err != nil {
		f.orders = orders
		f.items = items
		f.variantCosts = costs
		f.accounts = accounts
		f.movements = movements
		return err
	}
	return nil
}

func (f *fakeRepo) GetOrder(_ context.Context, id int64) (PurchaseOrder, error) {
	order, ok := f.orders[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return order, nil
}

func (f *fakeRepo) ListItems(_ context.Context, orderID int64) ([]Item, error) {
	var out []Item
	for id := int64(1); id <= f.nextItemID; id++ {
		if it, ok := f.items[id]; ok && it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListOrders(_ context.Context, filters ListFilters, limit, offset int) ([]OrderListItem, int, error) {
	var out []OrderListItem
	for id := int64(1); id <= f.nextOrderID; id++ {
		o, ok := f.orders[id]
		if !ok {
			continue
		}
		if filters.Status != "" && o.Status != filters.Status {
			continue
		}
		if filters.SupplierID > 0 && o.SupplierID != filters.SupplierID {
			continue
		}
		out = append(out, OrderListItem{ID: o.ID, Number: o.Number, SupplierID: o.SupplierID, Status: o.Status, CreatedAt: o.CreatedAt})
	}
	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (f *fakeRepo) InsertOrder(_ context.Context, order *PurchaseOrder) error {
	f.nextOrderID++
	order.ID = f.nextOrderID
	f.orders[order.ID] = *order
	return nil
}

func (f *fakeRepo) InsertItem(_ context.Context, item *Item) error {
	f.nextItemID++
	item.ID = f.nextItemID
	f.items[item.ID] = *item
	return nil
}

func (f *fakeRepo) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return f.GetOrder(ctx, id)
}

func (f *fakeRepo) UpdateOrder(_ context.Context, order PurchaseOrder) error {
	if _, ok := f.orders[order.ID]; !ok {
		return ErrNotFound
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeRepo) ListItemsForUpdate(ctx context.Context, orderID int64) ([]Item, error) {
	return f.ListItems(ctx, orderID)
}

func (f *fakeRepo) UpdateItemShipping(_ context.Context, itemID int64, shippingCost float64) error {
	it, ok := f.items[itemID]
	if !ok {
		return ErrNotFound
	}
	it.ShippingCost = shippingCost
	f.items[itemID] = it
	return nil
}

func (f *fakeRepo) UpdateItemReceipt(_ context.Context, item Item) error {
	if _, ok := f.items[item.ID]; !ok {
		return ErrNotFound
	}
	f.items[item.ID] = item
	return nil
}

func (f *fakeRepo) SetVariantLandedCost(_ context.Context, variantID int64, cost float64) error {
	f.variantCosts[variantID] = cost
	return nil
}

func (f *fakeRepo) Stock() stock.TxRepository {
	return (*fakeStockTx)(f)
}

// fakeStockTx gives the stock service a view of the same in-memory state,
// sharing the fakeRepo transaction boundary.
type fakeStockTx fakeRepo

func (f *fakeStockTx) GetAccountForUpdate(_ context.Context, variantID int64) (stock.Account, error) {
	account, ok := f.accounts[variantID]
	if !ok {
		return stock.Account{}, stock.ErrAccountNotFound
	}
	return account, nil
}

func (f *fakeStockTx) UpsertAccount(_ context.Context, account stock.Account) error {
	f.accounts[account.VariantID] = account
	return nil
}

func (f *fakeStockTx) InsertMovement(_ context.Context, movement stock.Movement) error {
	f.movements = append(f.movements, movement)
	return nil
}

type fakeIdem struct {
	keys map[string]bool
}

func newFakeIdem() *fakeIdem { return &fakeIdem{keys: map[string]bool{}} }

func (f *fakeIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdem) Delete(_ context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

func newTestService(repo *fakeRepo) *Service {
	return NewService(repo, stock.NewService(nil, nil), newFakeIdem(), nil, nil, nil, nil)
}

func createTestOrder(t *testing.T, svc *Service, items ...CreateItemInput) PurchaseOrder {
	t.Helper()
	if len(items) == 0 {
		items = []CreateItemInput{{ProductID: 1, ChinaPrice: 220, Quantity: 25}}
	}
	order, err := svc.CreateOrder(context.Background(), 7, CreateOrderRequest{SupplierID: 3, Items: items})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, order.Status)
	require.Empty(t, order.Number)
	return order
}

// advanceTo walks the order up the happy path to the requested status.
func advanceTo(t *testing.T, svc *Service, orderID int64, target Status) {
	t.Helper()
	ctx := context.Background()
	steps := []func() (PurchaseOrder, error){
		func() (PurchaseOrder, error) {
			return svc.ConfirmPayment(ctx, 7, orderID, ConfirmPaymentRequest{ExchangeRate: 15.3})
		},
		func() (PurchaseOrder, error) {
			return svc.MarkDispatched(ctx, 7, orderID, DispatchRequest{CourierName: "SF Express", TrackingNumber: "SF123"})
		},
		func() (PurchaseOrder, error) {
			return svc.MarkShipped(ctx, 7, orderID, ShipRequest{LotNumber: "LOT-9"})
		},
		func() (PurchaseOrder, error) {
			return svc.MarkArrived(ctx, 7, orderID, ArriveRequest{})
		},
		func() (PurchaseOrder, error) {
			return svc.MarkInTransit(ctx, 7, orderID, TransitRequest{BDCourierTracking: "BD456"})
		},
	}
	for _, step := range steps {
		order, err := step()
		require.NoError(t, err)
		if order.Status == target {
			return
		}
	}
	require.Failf(t, "advance", "never reached %s", target)
}

func TestReceiveOrderSplitsAcrossVariants(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	order := createTestOrder(t, svc)
	advanceTo(t, svc, order.ID, StatusInTransitBogura)

	items, err := repo.ListItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	updated, err := svc.ReceiveOrder(ctx, 7, order.ID, ReceiveRequest{
		ExtraCostGlobal: 250,
		TotalWeight:     40,
		Items: []ReceiveItemInput{{
			ItemID:       items[0].ID,
			ShippingCost: 500,
			LostQuantity: 5,
			ReceivedVariants: []ReceivedVariantInput{
				{VariantID: 101, Quantity: 12},
				{VariantID: 102, Quantity: 8},
			},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusReceivedHub, updated.Status)
	require.Equal(t, 250.0, updated.ExtraCostGlobal)
	require.Equal(t, 40.0, updated.TotalWeight)

	items, err = repo.ListItems(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, items[0].FinalUnitCost)
	require.InDelta(t, 4245, *items[0].FinalUnitCost, 1e-9)
	require.Equal(t, 5.0, items[0].LostQuantity)

	// both variants are credited at the final unit cost, and the variant
	// landed cost is stamped.
	require.InDelta(t, 12, repo.accounts[101].Quantity, 1e-9)
	require.InDelta(t, 4245, repo.accounts[101].AverageUnitCost, 1e-9)
	require.InDelta(t, 8, repo.accounts[102].Quantity, 1e-9)
	require.InDelta(t, 4245, repo.accounts[102].AverageUnitCost, 1e-9)
	require.InDelta(t, 4245, repo.variantCosts[101], 1e-9)
	require.InDelta(t, 4245, repo.variantCosts[102], 1e-9)
	require.Len(t, repo.movements, 2)

	completed, err := svc.CompleteOrder(ctx, 7, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
}

func TestReceiveOrderQuantityMismatchRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	order := createTestOrder(t, svc)
	advanceTo(t, svc, order.ID, StatusInTransitBogura)
	items, err := repo.ListItems(ctx, order.ID)
	require.NoError(t, err)

	req := ReceiveRequest{
		ExtraCostGlobal: 250,
		TotalWeight:     40,
		Items: []ReceiveItemInput{{
			ItemID:       items[0].ID,
			ShippingCost: 500,
			LostQuantity: 5,
			ReceivedVariants: []ReceivedVariantInput{
				{VariantID: 101, Quantity: 12},
				{VariantID: 102, Quantity: 7},
			},
		}},
	}
	_, err = svc.ReceiveOrder(ctx, 7, order.ID, req)
	require.ErrorIs(t, err, ErrReceiptQuantityMismatch)

	// nothing moved: order status, items and stock are untouched.
	current, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInTransitBogura, current.Status)
	items, err = repo.ListItems(ctx, order.ID)
	require.NoError(t, err)
	require.Nil(t, items[0].FinalUnitCost)
	require.Empty(t, repo.accounts)
	require.Empty(t, repo.variantCosts)

	// the idempotency key was released, a corrected receipt goes through.
	req.Items[0].ReceivedVariants[1].Quantity = 8
	_, err = svc.ReceiveOrder(ctx, 7, order.ID, req)
	require.NoError(t, err)
}

func TestReceiveOrderOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	order := createTestOrder(t, svc)
	advanceTo(t, svc, order.ID, StatusInTransitBogura)
	items, err := repo.ListItems(ctx, order.ID)
	require.NoError(t, err)

	req := ReceiveRequest{
		TotalWeight: 40,
		Items: []ReceiveItemInput{{
			ItemID:       items[0].ID,
			ReceivedVariants: []ReceivedVariantInput{
				{VariantID: 101, Quantity: 25},
			},
		}},
	}
	_, err = svc.ReceiveOrder(ctx, 7, order.ID, req)
	require.NoError(t, err)

	_, err = svc.ReceiveOrder(ctx, 7, order.ID, req)
	require.ErrorIs(t, err, ErrIllegalTransition)
	require.InDelta(t, 25, repo.accounts[101].Quantity, 1e-9)
}

func TestReceiveOrderImplicitVariant(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	order := createTestOrder(t, svc, CreateItemInput{ProductID: 1, VariantID: 55, ChinaPrice: 100, Quantity: 10})
	advanceTo(t, svc, order.ID, StatusInTransitBogura)
	items, err := repo.ListItems(ctx, order.ID)
	require.NoError(t, err)

	// no received_variants: the whole effective quantity lands on the
	// line's own variant.
	_, err = svc.ReceiveOrder(ctx, 7, order.ID, ReceiveRequest{
		TotalWeight: 12,
		Items:       []ReceiveItemInput{{ItemID: items[0].ID, LostQuantity: 1}},
	})
	require.NoError(t, err)
	require.InDelta(t, 9, repo.accounts[55].Quantity, 1e-9)
}

func TestReceiveOrderRejectsForeignReceiptEntry(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	order := createTestOrder(t, svc)
	advanceTo(t, svc, order.ID, StatusInTransitBogura)
	items, err := repo.ListItems(ctx, order.ID)
	require.NoError(t, err)

	_, err = svc.ReceiveOrder(ctx, 7, order.ID, ReceiveRequest{
		TotalWeight: 40,
		Items: []ReceiveItemInput{
			{
				ItemID:           items[0].ID,
				ReceivedVariants: []ReceivedVariantInput{{VariantID: 101, Quantity: 25}},
			},
			{
				ItemID:           999,
				ReceivedVariants: []ReceivedVariantInput{{VariantID: 777, Quantity: 50}},
			},
		},
	})
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorContains(t, err, "item 999")

	current, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInTransitBogura, current.Status)
	require.Empty(t, repo.movements)
	require.NotContains(t, repo.accounts, int64(777))

	// the idempotency key is released, so a corrected receipt goes through.
	_, err = svc.ReceiveOrder(ctx, 7, order.ID, ReceiveRequest{
		TotalWeight: 40,
		Items: []ReceiveItemInput{{
			ItemID:           items[0].ID,
			ReceivedVariants: []ReceivedVariantInput{{VariantID: 101, Quantity: 25}},
		}},
	})
	require.NoError(t, err)
}

func TestTransitionRejectsSkippingStages(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	order := createTestOrder(t, svc)
	_, err := svc.MarkDispatched(ctx, 7, order.ID, DispatchRequest{CourierName: "SF", TrackingNumber: "X"})
	require.ErrorIs(t, err, ErrIllegalTransition)

	_, err = svc.ReceiveOrder(ctx, 7, order.ID, ReceiveRequest{
		TotalWeight: 1,
		Items:       []ReceiveItemInput{{ItemID: 1}},
	})
	require.ErrorIs(t, err, ErrIllegalTransition)

	current, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, current.Status)
}

func TestTransitionRequiresStageFields(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	order := createTestOrder(t, svc)
	_, err := svc.ConfirmPayment(ctx, 7, order.ID, ConfirmPaymentRequest{})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.ConfirmPayment(ctx, 7, order.ID, ConfirmPaymentRequest{ExchangeRate: 15.3})
	require.NoError(t, err)

	_, err = svc.MarkDispatched(ctx, 7, order.ID, DispatchRequest{TrackingNumber: "X"})
	require.ErrorIs(t, err, ErrMissingField)

	_, err = svc.MarkDispatched(ctx, 7, order.ID, DispatchRequest{CourierName: "SF"})
	require.ErrorIs(t, err, ErrMissingField)
}

func TestConfirmPaymentRateImmutable(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	order := createTestOrder(t, svc)
	rate := 16.0
	seeded := repo.orders[order.ID]
	seeded.ExchangeRate = &rate
	repo.orders[order.ID] = seeded

	_, err := svc.ConfirmPayment(ctx, 7, order.ID, ConfirmPaymentRequest{ExchangeRate: 15.3})
	require.ErrorIs(t, err, ErrExchangeRateLocked)
}

func TestConfirmPaymentAssignsOrderNumber(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	order := createTestOrder(t, svc)
	require.Empty(t, order.Number)

	confirmed, err := svc.ConfirmPayment(ctx, 7, order.ID, ConfirmPaymentRequest{ExchangeRate: 15.3})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(confirmed.Number, "PO-"))

	stored, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, confirmed.Number, stored.Number)
}

func TestMarkLostFromAnyNonTerminalStage(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	order := createTestOrder(t, svc)
	advanceTo(t, svc, order.ID, StatusShippedBD)

	lost, err := svc.MarkLost(ctx, 7, order.ID, MarkLostRequest{Reason: "container overboard"})
	require.NoError(t, err)
	require.Equal(t, StatusLost, lost.Status)
	require.Contains(t, lost.Note, "container overboard")
	require.Empty(t, repo.movements)

	_, err = svc.MarkArrived(ctx, 7, order.ID, ArriveRequest{})
	require.ErrorIs(t, err, ErrIllegalTransition)
	_, err = svc.MarkLost(ctx, 7, order.ID, MarkLostRequest{})
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestCompleteOrderRequiresCostedLines(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	order := createTestOrder(t, svc)
	seeded := repo.orders[order.ID]
	seeded.Status = StatusReceivedHub
	repo.orders[order.ID] = seeded

	_, err := svc.CompleteOrder(ctx, 7, order.ID)
	require.ErrorIs(t, err, ErrIllegalTransition)
	require.Contains(t, err.Error(), "final unit cost")
}

func TestMarkArrivedUpdatesShipping(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	order := createTestOrder(t, svc)
	advanceTo(t, svc, order.ID, StatusShippedBD)
	items, err := repo.ListItems(ctx, order.ID)
	require.NoError(t, err)

	_, err = svc.MarkArrived(ctx, 7, order.ID, ArriveRequest{
		Items: []ItemShippingInput{{ItemID: items[0].ID, ShippingCost: 750}},
	})
	require.NoError(t, err)
	items, err = repo.ListItems(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, 750.0, items[0].ShippingCost)

	// an item id from another order is rejected
	other := createTestOrder(t, svc)
	advanceTo(t, svc, other.ID, StatusShippedBD)
	_, err = svc.MarkArrived(ctx, 7, other.ID, ArriveRequest{
		Items: []ItemShippingInput{{ItemID: items[0].ID, ShippingCost: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	_, err := svc.ListOrders(context.Background(), ListRequest{Status: "CANCELLED"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestListOrdersFilterAndPage(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := newTestService(repo)

	for i := 0; i < 3; i++ {
		createTestOrder(t, svc)
	}
	advanceTo(t, svc, 1, StatusPaymentConfirmed)

	resp, err := svc.ListOrders(ctx, ListRequest{Status: string(StatusDraft)})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Total)

	resp, err = svc.ListOrders(ctx, ListRequest{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, resp.Total)
	require.Len(t, resp.Orders, 2)
}
