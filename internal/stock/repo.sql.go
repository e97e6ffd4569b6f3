package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/padma-erp/padma-erp/internal/platform/db"
)

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetAccountForUpdate(ctx context.Context, variantID int64) (Account, error)
	UpsertAccount(ctx context.Context, account Account) error
	InsertMovement(ctx context.Context, movement Movement) error
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

// Bind wraps an existing pgx transaction so other modules can share one
// transactional boundary with stock mutations.
func Bind(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// GetAccount loads the account row for a variant.
func (r *Repository) GetAccount(ctx context.Context, variantID int64) (Account, error) {
	var account Account
	err := r.pool.QueryRow(ctx, `SELECT variant_id, qty, reserved_qty, avg_unit_cost, last_unit_cost, total_value, updated_at
FROM stock_accounts WHERE variant_id=$1`, variantID).
		Scan(&account.VariantID, &account.Quantity, &account.ReservedQuantity, &account.AverageUnitCost, &account.LastUnitCost, &account.TotalValue, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

// ListMovements returns ledger entries, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	sql := `SELECT id, code, movement_type, variant_id, qty, unit_cost, balance_qty, ref_module, COALESCE(ref_id::text,''), note, actor_id, posted_at
FROM stock_movements WHERE variant_id=$1`
	args := []any{filter.VariantID}
	argNum := 2
	if filter.Type != "" {
		sql += ` AND movement_type=$` + itoa(argNum)
		args = append(args, string(filter.Type))
		argNum++
	}
	if !filter.From.IsZero() {
		sql += ` AND posted_at >= $` + itoa(argNum)
		args = append(args, filter.From)
		argNum++
	}
	if !filter.To.IsZero() {
		sql += ` AND posted_at <= $` + itoa(argNum)
		args = append(args, filter.To)
		argNum++
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	sql += ` ORDER BY posted_at DESC, id DESC LIMIT $` + itoa(argNum)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.Code, &m.Type, &m.VariantID, &m.Qty, &m.UnitCost, &m.BalanceQty, &m.RefModule, &m.RefID, &m.Note, &m.ActorID, &m.PostedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (tx *txRepo) GetAccountForUpdate(ctx context.Context, variantID int64) (Account, error) {
	var account Account
	err := tx.tx.QueryRow(ctx, `SELECT variant_id, qty, reserved_qty, avg_unit_cost, last_unit_cost, total_value, updated_at
FROM stock_accounts WHERE variant_id=$1 FOR UPDATE`, variantID).
		Scan(&account.VariantID, &account.Quantity, &account.ReservedQuantity, &account.AverageUnitCost, &account.LastUnitCost, &account.TotalValue, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{VariantID: variantID}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

func (tx *txRepo) UpsertAccount(ctx context.Context, account Account) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO stock_accounts (variant_id, qty, reserved_qty, avg_unit_cost, last_unit_cost, total_value, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (variant_id) DO UPDATE SET qty=EXCLUDED.qty, reserved_qty=EXCLUDED.reserved_qty, avg_unit_cost=EXCLUDED.avg_unit_cost, last_unit_cost=EXCLUDED.last_unit_cost, total_value=EXCLUDED.total_value, updated_at=NOW()`,
		account.VariantID, account.Quantity, account.ReservedQuantity, account.AverageUnitCost, account.LastUnitCost, account.TotalValue)
	return err
}

func (tx *txRepo) InsertMovement(ctx context.Context, movement Movement) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO stock_movements (code, movement_type, variant_id, qty, unit_cost, balance_qty, ref_module, ref_id, note, actor_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		movement.Code, string(movement.Type), movement.VariantID, movement.Qty, movement.UnitCost, movement.BalanceQty, movement.RefModule, nullStr(movement.RefID), movement.Note, movement.ActorID, movement.PostedAt)
	return err
}

// itoa converts int to string for dynamic query building.
func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
