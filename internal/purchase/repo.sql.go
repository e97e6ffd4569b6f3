package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/padma-erp/padma-erp/internal/platform/db"
	"github.com/padma-erp/padma-erp/internal/stock"
)

// Repository persists purchase data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const orderColumns = `id, COALESCE(number,''), supplier_id, status, exchange_rate, extra_cost_global, total_weight,
COALESCE(courier_name,''), COALESCE(tracking_number,''), COALESCE(lot_number,''), COALESCE(bd_courier_tracking,''),
COALESCE(note,''), created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var o PurchaseOrder
	var status string
	err := row.Scan(&o.ID, &o.Number, &o.SupplierID, &status, &o.ExchangeRate, &o.ExtraCostGlobal, &o.TotalWeight,
		&o.CourierName, &o.TrackingNumber, &o.LotNumber, &o.BDCourierTracking,
		&o.Note, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	o.Status = Status(status)
	return o, nil
}

// GetOrder loads one order by id.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1`, id)
	return scanOrder(row)
}

// ListItems returns the order's lines.
func (r *Repository) ListItems(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, po_id, product_id, COALESCE(product_variant_id,0), china_price, quantity, shipping_cost, lost_quantity, final_unit_cost
FROM purchase_order_items WHERE po_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.ChinaPrice, &it.Quantity, &it.ShippingCost, &it.LostQuantity, &it.FinalUnitCost); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// sortColumns whitelists client-supplied sort keys.
var sortColumns = map[string]string{
	"created_at": "po.created_at",
	"number":     "po.number",
	"status":     "po.status",
	"supplier":   "s.name",
}

// ListOrders returns the list projection with supplier names, filtered and
// paged, plus the unpaged total.
func (r *Repository) ListOrders(ctx context.Context, filters ListFilters, limit, offset int) ([]OrderListItem, int, error) {
	where := []string{"1=1"}
	args := []any{}
	argNum := 1
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("po.status=$%d", argNum))
		args = append(args, string(filters.Status))
		argNum++
	}
	if filters.SupplierID > 0 {
		where = append(where, fmt.Sprintf("po.supplier_id=$%d", argNum))
		args = append(args, filters.SupplierID)
		argNum++
	}
	if filters.Search != "" {
		where = append(where, fmt.Sprintf("(po.number ILIKE $%d OR s.name ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}
	cond := strings.Join(where, " AND ")

	var total int
	countSQL := `SELECT COUNT(*) FROM purchase_orders po JOIN suppliers s ON s.id = po.supplier_id WHERE ` + cond
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderBy, ok := sortColumns[filters.SortBy]
	if !ok {
		orderBy = "po.created_at"
	}
	dir := "DESC"
	if strings.EqualFold(filters.SortDir, "asc") {
		dir = "ASC"
	}

	listSQL := fmt.Sprintf(`SELECT po.id, COALESCE(po.number,''), po.supplier_id, s.name, po.status,
COUNT(i.id), COALESCE(SUM(i.quantity),0), po.created_at
FROM purchase_orders po
JOIN suppliers s ON s.id = po.supplier_id
LEFT JOIN purchase_order_items i ON i.po_id = po.id
WHERE %s
GROUP BY po.id, s.name
ORDER BY %s %s
LIMIT $%d OFFSET $%d`, cond, orderBy, dir, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []OrderListItem
	for rows.Next() {
		var o OrderListItem
		var status string
		if err := rows.Scan(&o.ID, &o.Number, &o.SupplierID, &o.SupplierName, &status, &o.ItemCount, &o.TotalOrdered, &o.CreatedAt); err != nil {
			return nil, 0, err
		}
		o.Status = Status(status)
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// InsertOrder writes the order header and fills in its id.
func (t *txRepo) InsertOrder(ctx context.Context, order *PurchaseOrder) error {
	return t.tx.QueryRow(ctx, `INSERT INTO purchase_orders
(number, supplier_id, status, extra_cost_global, total_weight, note, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		nullStr(order.Number), order.SupplierID, string(order.Status), order.ExtraCostGlobal, order.TotalWeight,
		nullStr(order.Note), order.CreatedBy, order.CreatedAt, order.UpdatedAt).Scan(&order.ID)
}

// InsertItem writes one line and fills in its id.
func (t *txRepo) InsertItem(ctx context.Context, item *Item) error {
	var variantID any
	if item.VariantID > 0 {
		variantID = item.VariantID
	}
	return t.tx.QueryRow(ctx, `INSERT INTO purchase_order_items
(po_id, product_id, product_variant_id, china_price, quantity, shipping_cost, lost_quantity)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		item.OrderID, item.ProductID, variantID, item.ChinaPrice, item.Quantity, item.ShippingCost, item.LostQuantity).Scan(&item.ID)
}

// GetOrderForUpdate loads and row-locks one order.
func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id)
	return scanOrder(row)
}

// UpdateOrder persists the mutable header fields.
func (t *txRepo) UpdateOrder(ctx context.Context, order PurchaseOrder) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET
number=$2, status=$3, exchange_rate=$4, extra_cost_global=$5, total_weight=$6,
courier_name=$7, tracking_number=$8, lot_number=$9, bd_courier_tracking=$10, note=$11, updated_at=$12
WHERE id=$1`,
		order.ID, nullStr(order.Number), string(order.Status), order.ExchangeRate, order.ExtraCostGlobal, order.TotalWeight,
		nullStr(order.CourierName), nullStr(order.TrackingNumber), nullStr(order.LotNumber), nullStr(order.BDCourierTracking),
		nullStr(order.Note), order.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListItemsForUpdate loads and row-locks the order's lines.
func (t *txRepo) ListItemsForUpdate(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, po_id, product_id, COALESCE(product_variant_id,0), china_price, quantity, shipping_cost, lost_quantity, final_unit_cost
FROM purchase_order_items WHERE po_id=$1 ORDER BY id FOR UPDATE`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

// UpdateItemShipping sets the known shipping cost on one line.
func (t *txRepo) UpdateItemShipping(ctx context.Context, itemID int64, shippingCost float64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_order_items SET shipping_cost=$2 WHERE id=$1`, itemID, shippingCost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateItemReceipt persists the line's receipt outcome.
func (t *txRepo) UpdateItemReceipt(ctx context.Context, item Item) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_order_items SET
shipping_cost=$2, lost_quantity=$3, final_unit_cost=$4 WHERE id=$1`,
		item.ID, item.ShippingCost, item.LostQuantity, item.FinalUnitCost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetVariantLandedCost stamps the latest landed cost on the variant row.
// Receipts overwrite unconditionally, last write wins.
func (t *txRepo) SetVariantLandedCost(ctx context.Context, variantID int64, cost float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE product_variants SET landed_cost=$2, updated_at=NOW() WHERE id=$1`, variantID, cost)
	return err
}

// Stock binds the stock repository to this transaction.
func (t *txRepo) Stock() stock.TxRepository {
	return stock.Bind(t.tx)
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
