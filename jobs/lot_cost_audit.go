package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/padma-erp/padma-erp/internal/jobs"
	"github.com/padma-erp/padma-erp/internal/purchase"
)

type auditOrder struct {
	ID              int64
	Number          string
	ExchangeRate    *float64
	ExtraCostGlobal float64
}

type auditItem struct {
	ID            int64
	ChinaPrice    float64
	Quantity      float64
	ShippingCost  float64
	LostQuantity  float64
	FinalUnitCost *float64
}

// NewLotCostAuditHandler recomputes the landed cost for received orders and
// reports lines whose stored final unit cost no longer matches a fresh
// allocation. A receipt is final, so any drift points at manual edits or a
// formula change and is worth an alert, not an automatic fix.
func NewLotCostAuditHandler(pool *pgxpool.Pool, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LotCostAuditPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("lot_cost_audit")

		orders, err := loadAuditOrders(ctx, pool, payload.OrderID)
		if err != nil {
			logger.Error("lot cost audit", slog.Any("error", err))
			return tracker.End(err)
		}

		var missing, drifted int
		for _, order := range orders {
			items, err := loadAuditItems(ctx, pool, order.ID)
			if err != nil {
				logger.Error("lot cost audit", slog.Int64("order_id", order.ID), slog.Any("error", err))
				return tracker.End(err)
			}
			var totalOrdered float64
			for _, it := range items {
				totalOrdered += it.Quantity
			}
			for _, it := range items {
				if it.Quantity <= it.LostQuantity {
					continue
				}
				if it.FinalUnitCost == nil {
					missing++
					logger.Warn("received line has no final unit cost",
						slog.String("number", order.Number), slog.Int64("item_id", it.ID))
					continue
				}
				if order.ExchangeRate == nil {
					missing++
					continue
				}
				alloc, err := purchase.Allocate(purchase.AllocationInput{
					ChinaPrice:           it.ChinaPrice,
					ExchangeRate:         *order.ExchangeRate,
					Quantity:             it.Quantity,
					LostQuantity:         it.LostQuantity,
					ShippingCost:         it.ShippingCost,
					ExtraCostGlobal:      order.ExtraCostGlobal,
					TotalOrderedQuantity: totalOrdered,
				})
				if err != nil {
					logger.Warn("stored receipt no longer allocates",
						slog.String("number", order.Number), slog.Int64("item_id", it.ID), slog.Any("error", err))
					drifted++
					continue
				}
				if math.Abs(alloc.FinalUnitCost-*it.FinalUnitCost) >= 0.01 {
					drifted++
					logger.Warn("final unit cost drifted from fresh allocation",
						slog.String("number", order.Number),
						slog.Int64("item_id", it.ID),
						slog.Float64("stored", *it.FinalUnitCost),
						slog.Float64("recomputed", alloc.FinalUnitCost))
				}
			}
		}

		metrics.AddAnomalies("missing_cost", missing)
		metrics.AddAnomalies("cost_drift", drifted)
		if missing == 0 && drifted == 0 {
			logger.Info("lot cost audit clean", slog.Int("orders", len(orders)))
		}
		return tracker.End(nil)
	}
}

func loadAuditOrders(ctx context.Context, pool *pgxpool.Pool, orderID int64) ([]auditOrder, error) {
	sql := `SELECT id, COALESCE(number,''), exchange_rate, extra_cost_global FROM purchase_orders
WHERE status IN ('RECEIVED_HUB','COMPLETED')`
	args := []any{}
	if orderID > 0 {
		sql += ` AND id=$1`
		args = append(args, orderID)
	}
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auditOrder
	for rows.Next() {
		var o auditOrder
		if err := rows.Scan(&o.ID, &o.Number, &o.ExchangeRate, &o.ExtraCostGlobal); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func loadAuditItems(ctx context.Context, pool *pgxpool.Pool, orderID int64) ([]auditItem, error) {
	rows, err := pool.Query(ctx, `SELECT id, china_price, quantity, shipping_cost, lost_quantity, final_unit_cost
FROM purchase_order_items WHERE po_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auditItem
	for rows.Next() {
		var it auditItem
		if err := rows.Scan(&it.ID, &it.ChinaPrice, &it.Quantity, &it.ShippingCost, &it.LostQuantity, &it.FinalUnitCost); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
