package purchase

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/padma-erp/padma-erp/internal/platform/httpx"
)

func newTestRouter(repo *fakeRepo) chi.Router {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	handler := NewHandler(logger, newTestService(repo))
	r := chi.NewRouter()
	r.Route("/purchase-orders", handler.MountRoutes)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "7")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateOrder(t *testing.T) {
	router := newTestRouter(newFakeRepo())

	rec := doJSON(t, router, http.MethodPost, "/purchase-orders", CreateOrderRequest{
		SupplierID: 3,
		Items:      []CreateItemInput{{ProductID: 1, ChinaPrice: 220, Quantity: 25}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Order PurchaseOrder `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, StatusDraft, body.Order.Status)
	require.NotZero(t, body.Order.ID)
}

func TestHandlerCreateOrderRejectsEmptyItems(t *testing.T) {
	router := newTestRouter(newFakeRepo())
	rec := doJSON(t, router, http.MethodPost, "/purchase-orders", map[string]any{"supplier_id": 3})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerIllegalTransitionConflicts(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo)

	rec := doJSON(t, router, http.MethodPost, "/purchase-orders", CreateOrderRequest{
		SupplierID: 3,
		Items:      []CreateItemInput{{ProductID: 1, ChinaPrice: 10, Quantity: 5}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/purchase-orders/1/dispatch", DispatchRequest{
		CourierName: "SF", TrackingNumber: "X1",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, http.StatusConflict, problem.Status)
	require.Contains(t, problem.Detail, "DRAFT -> SUPPLIER_DISPATCHED")
}

func TestHandlerConfirmPaymentValidatesBody(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo)
	doJSON(t, router, http.MethodPost, "/purchase-orders", CreateOrderRequest{
		SupplierID: 3,
		Items:      []CreateItemInput{{ProductID: 1, ChinaPrice: 10, Quantity: 5}},
	})

	rec := doJSON(t, router, http.MethodPost, "/purchase-orders/1/confirm-payment", map[string]any{})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/purchase-orders/1/confirm-payment", ConfirmPaymentRequest{ExchangeRate: 15.3})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerGetOrder(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo)
	doJSON(t, router, http.MethodPost, "/purchase-orders", CreateOrderRequest{
		SupplierID: 3,
		Items:      []CreateItemInput{{ProductID: 1, ChinaPrice: 10, Quantity: 5}},
	})

	rec := doJSON(t, router, http.MethodGet, "/purchase-orders/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)

	rec = doJSON(t, router, http.MethodGet, "/purchase-orders/999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/purchase-orders/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerReceiveMismatchConflicts(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo)
	svc := newTestService(repo)

	order := createTestOrder(t, svc)
	advanceTo(t, svc, order.ID, StatusInTransitBogura)

	rec := doJSON(t, router, http.MethodPost, "/purchase-orders/1/receive", ReceiveRequest{
		TotalWeight: 40,
		Items: []ReceiveItemInput{{
			ItemID:       1,
			LostQuantity: 5,
			ReceivedVariants: []ReceivedVariantInput{
				{VariantID: 101, Quantity: 12},
				{VariantID: 102, Quantity: 7},
			},
		}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}
