package purchase

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/padma-erp/padma-erp/internal/platform/httpx"
	"github.com/padma-erp/padma-erp/internal/shared"
)

// Handler manages purchase order endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{orderID}", h.get)
	r.Post("/{orderID}/confirm-payment", h.confirmPayment)
	r.Post("/{orderID}/dispatch", h.dispatch)
	r.Post("/{orderID}/ship", h.ship)
	r.Post("/{orderID}/arrive", h.arrive)
	r.Post("/{orderID}/transit", h.transit)
	r.Post("/{orderID}/receive", h.receive)
	r.Post("/{orderID}/complete", h.complete)
	r.Post("/{orderID}/lost", h.markLost)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.CreateOrder(r.Context(), actorID(r), req)
	if err != nil {
		h.respondErr(w, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	req := ListRequest{
		Status:     q.Get("status"),
		SupplierID: supplierID,
		Search:     q.Get("search"),
		SortBy:     q.Get("sort_by"),
		SortDir:    q.Get("sort_dir"),
		Limit:      limit,
		Offset:     offset,
	}
	resp, err := h.service.ListOrders(r.Context(), req)
	if err != nil {
		h.respondErr(w, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	resp, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req ConfirmPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.ConfirmPayment(r.Context(), actorID(r), id, req)
	h.respondTransition(w, "confirm payment", order, err)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req DispatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.MarkDispatched(r.Context(), actorID(r), id, req)
	h.respondTransition(w, "dispatch", order, err)
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req ShipRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.MarkShipped(r.Context(), actorID(r), id, req)
	h.respondTransition(w, "ship", order, err)
}

func (h *Handler) arrive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req ArriveRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.MarkArrived(r.Context(), actorID(r), id, req)
	h.respondTransition(w, "arrive", order, err)
}

func (h *Handler) transit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req TransitRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.MarkInTransit(r.Context(), actorID(r), id, req)
	h.respondTransition(w, "transit", order, err)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req ReceiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.ReceiveOrder(r.Context(), actorID(r), id, req)
	h.respondTransition(w, "receive", order, err)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.CompleteOrder(r.Context(), actorID(r), id)
	h.respondTransition(w, "complete", order, err)
}

func (h *Handler) markLost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req MarkLostRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.MarkLost(r.Context(), actorID(r), id, req)
	h.respondTransition(w, "mark lost", order, err)
}

func (h *Handler) respondTransition(w http.ResponseWriter, op string, order PurchaseOrder, err error) {
	if err != nil {
		h.respondErr(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnprocessable, err))
		return false
	}
	return true
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrReceiptQuantityMismatch), errors.Is(err, shared.ErrOrderLocked):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err))
	case errors.Is(err, ErrValidation), errors.Is(err, ErrMissingField), errors.Is(err, ErrInvalidAllocationInput), errors.Is(err, ErrExchangeRateLocked):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnprocessable, err))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// actorID reads the acting user from the X-Actor-ID header. Authentication
// sits in front of this service, the header carries the resolved identity.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}
