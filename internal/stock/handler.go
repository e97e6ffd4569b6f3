package stock

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/padma-erp/padma-erp/internal/platform/httpx"
)

// Handler manages stock endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{variantID}", h.getAccount)
	r.Get("/movements", h.listMovements)
	r.Post("/accounts/{variantID}/reserve", h.reserve)
	r.Post("/accounts/{variantID}/release", h.release)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	variantID, err := strconv.ParseInt(chi.URLParam(r, "variantID"), 10, 64)
	if err != nil || variantID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid variant id")
		return
	}
	account, err := h.service.GetAccount(r.Context(), variantID)
	if err != nil {
		h.respondErr(w, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, accountResponse(account))
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	variantID, _ := strconv.ParseInt(r.URL.Query().Get("variant_id"), 10, 64)
	if variantID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "variant_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filter := MovementFilter{
		VariantID: variantID,
		Type:      MovementType(r.URL.Query().Get("type")),
		Limit:     limit,
	}
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.From = t
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.To = t
		}
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondErr(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

type reservationRequest struct {
	Quantity float64 `json:"quantity"`
	Note     string  `json:"note"`
	ActorID  int64   `json:"actor_id"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	h.adjustReservation(w, r, true)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	h.adjustReservation(w, r, false)
}

func (h *Handler) adjustReservation(w http.ResponseWriter, r *http.Request, reserve bool) {
	variantID, err := strconv.ParseInt(chi.URLParam(r, "variantID"), 10, 64)
	if err != nil || variantID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid variant id")
		return
	}
	var req reservationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	input := ReserveInput{VariantID: variantID, Quantity: req.Quantity, Note: req.Note, ActorID: req.ActorID}
	var account Account
	if reserve {
		account, err = h.service.Reserve(r.Context(), input)
	} else {
		account, err = h.service.ReleaseReservation(r.Context(), input)
	}
	if err != nil {
		h.respondErr(w, "adjust reservation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, accountResponse(account))
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnprocessable, err))
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrInsufficientReservation):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func accountResponse(account Account) map[string]any {
	return map[string]any{
		"variant_id":        account.VariantID,
		"quantity":          account.Quantity,
		"reserved_quantity": account.ReservedQuantity,
		"average_unit_cost": account.AverageUnitCost,
		"last_unit_cost":    account.LastUnitCost,
		"total_value":       account.TotalValue,
		"updated_at":        account.UpdatedAt,
	}
}
