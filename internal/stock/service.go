package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/padma-erp/padma-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, variantID int64) (Account, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock account operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// AddStock credits units to a variant account inside its own transaction.
// Calling it twice adds stock twice; callers guard against double invocation
// with their own idempotency keys.
func (s *Service) AddStock(ctx context.Context, input AddStockInput) (Account, error) {
	return s.addStock(ctx, nil, input)
}

// AddStockTx credits units using the caller's open transaction so the stock
// mutation commits or rolls back with the order transition that caused it.
func (s *Service) AddStockTx(ctx context.Context, tx TxRepository, input AddStockInput) (Account, error) {
	if tx == nil {
		return Account{}, errors.New("stock: nil transaction")
	}
	return s.addStock(ctx, tx, input)
}

func (s *Service) addStock(ctx context.Context, tx TxRepository, input AddStockInput) (Account, error) {
	if input.VariantID == 0 {
		return Account{}, errors.New("stock: variant required")
	}
	if input.Quantity <= 0 {
		return Account{}, ErrInvalidQuantity
	}
	if input.UnitCost != nil && *input.UnitCost < 0 {
		return Account{}, ErrInvalidUnitCost
	}
	if input.RefID != "" {
		if _, err := uuid.Parse(input.RefID); err != nil {
			return Account{}, fmt.Errorf("stock: invalid ref id: %w", err)
		}
	}

	now := time.Now().UTC()
	code := input.Code
	if code == "" {
		code = fmt.Sprintf("STK-%d", now.UnixNano())
	}

	var updated Account
	apply := func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, input.VariantID)
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return err
		}
		if errors.Is(err, ErrAccountNotFound) {
			account = Account{VariantID: input.VariantID}
		}

		newQty := account.Quantity + input.Quantity
		newAvg := account.AverageUnitCost
		lastCost := account.LastUnitCost
		if input.UnitCost != nil {
			totalCost := account.Quantity*account.AverageUnitCost + input.Quantity*(*input.UnitCost)
			newAvg = totalCost / newQty
			lastCost = *input.UnitCost
		}

		account.Quantity = newQty
		account.AverageUnitCost = newAvg
		account.LastUnitCost = lastCost
		account.TotalValue = newQty * newAvg
		account.UpdatedAt = now
		if err := tx.UpsertAccount(ctx, account); err != nil {
			return err
		}

		movement := Movement{
			Code:       code,
			Type:       MovementTypeIn,
			VariantID:  input.VariantID,
			Qty:        input.Quantity,
			UnitCost:   lastCost,
			BalanceQty: newQty,
			RefModule:  input.RefModule,
			RefID:      input.RefID,
			Note:       input.Note,
			ActorID:    input.ActorID,
			PostedAt:   now,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		updated = account
		return nil
	}

	var err error
	if tx != nil {
		err = apply(ctx, tx)
	} else {
		err = s.repo.WithTx(ctx, apply)
	}
	if err != nil {
		return Account{}, err
	}

	s.recordAudit(ctx, input.ActorID, "stock:add", input.VariantID, map[string]any{
		"qty":  input.Quantity,
		"code": code,
		"note": input.Note,
	})
	return updated, nil
}

// Reserve places a hold on free stock for the given variant.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (Account, error) {
	return s.adjustReservation(ctx, input, MovementTypeReserve)
}

// ReleaseReservation returns held stock to the free pool.
func (s *Service) ReleaseReservation(ctx context.Context, input ReserveInput) (Account, error) {
	return s.adjustReservation(ctx, input, MovementTypeRelease)
}

func (s *Service) adjustReservation(ctx context.Context, input ReserveInput, kind MovementType) (Account, error) {
	if input.VariantID == 0 {
		return Account{}, errors.New("stock: variant required")
	}
	if input.Quantity <= 0 {
		return Account{}, ErrInvalidQuantity
	}

	now := time.Now().UTC()
	code := input.Code
	if code == "" {
		code = fmt.Sprintf("RSV-%d", now.UnixNano())
	}

	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, input.VariantID)
		if err != nil {
			return err
		}
		switch kind {
		case MovementTypeReserve:
			free := account.Quantity - account.ReservedQuantity
			if input.Quantity > free {
				return ErrInsufficientStock
			}
			account.ReservedQuantity += input.Quantity
		case MovementTypeRelease:
			if input.Quantity > account.ReservedQuantity {
				return ErrInsufficientReservation
			}
			account.ReservedQuantity -= input.Quantity
		default:
			return fmt.Errorf("stock: unsupported movement %s", kind)
		}
		account.UpdatedAt = now
		if err := tx.UpsertAccount(ctx, account); err != nil {
			return err
		}
		movement := Movement{
			Code:       code,
			Type:       kind,
			VariantID:  input.VariantID,
			Qty:        input.Quantity,
			BalanceQty: account.Quantity,
			RefModule:  input.RefModule,
			RefID:      input.RefID,
			Note:       input.Note,
			ActorID:    input.ActorID,
			PostedAt:   now,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return Account{}, err
	}

	s.recordAudit(ctx, input.ActorID, fmt.Sprintf("stock:%s", kind), input.VariantID, map[string]any{
		"qty":  input.Quantity,
		"code": code,
	})
	return updated, nil
}

// GetAccount returns the account for a variant.
func (s *Service) GetAccount(ctx context.Context, variantID int64) (Account, error) {
	if variantID == 0 {
		return Account{}, errors.New("stock: variant required")
	}
	return s.repo.GetAccount(ctx, variantID)
}

// ListMovements lists ledger entries for reporting.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.VariantID == 0 {
		return nil, errors.New("stock: variant required")
	}
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, variantID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_account",
		EntityID: fmt.Sprintf("%d", variantID),
		Meta:     meta,
	})
}
