package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rohanmalik/merakistore-backend/api/middleware"
	cartsvc "github.com/rohanmalik/merakistore-backend/internal/cart"
	checkoutsvc "github.com/rohanmalik/merakistore-backend/internal/checkout"
	"github.com/rohanmalik/merakistore-backend/internal/identity"
	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
	"github.com/rohanmalik/merakistore-backend/pkg/enums"
	pkgerrors "github.com/rohanmalik/merakistore-backend/pkg/errors"
)

type stubCheckoutService struct {
	summary *checkoutsvc.Summary
	order   *models.Order
	err     error

	lastInput *checkoutsvc.PlaceInput
}

func (s *stubCheckoutService) GetSummary(ctx context.Context, userID uuid.UUID, owner identity.OwnerKey) (*checkoutsvc.Summary, error) {
	return s.summary, s.err
}

func (s *stubCheckoutService) PlaceCodOrder(ctx context.Context, userID uuid.UUID, owner identity.OwnerKey, input checkoutsvc.PlaceInput) (*models.Order, error) {
	s.lastInput = &input
	return s.order, s.err
}

func checkoutRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	userID := uuid.New()
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithOwnerKey(ctx, identity.ForUser(userID))
	return req.WithContext(ctx)
}

func TestCheckoutSummaryReturnsEnvelope(t *testing.T) {
	svc := &stubCheckoutService{summary: &checkoutsvc.Summary{
		Totals:  cartsvc.Totals{Subtotal: decimal.NewFromInt(499), ItemCount: 1},
		Payment: enums.PaymentMethodCOD,
	}}
	handler := CheckoutSummary(svc, nil)

	req := checkoutRequest(http.MethodGet, "/api/v1/checkout/summary", "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data checkoutsvc.Summary `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Payment != enums.PaymentMethodCOD {
		t.Fatalf("wrong payment method: %s", envelope.Data.Payment)
	}
}

func TestCheckoutSummaryRequiresUser(t *testing.T) {
	handler := CheckoutSummary(&stubCheckoutService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/summary", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCheckoutPlaceCodCreatesOrder(t *testing.T) {
	addressID := uuid.New()
	svc := &stubCheckoutService{order: &models.Order{ID: uuid.New(), Status: enums.OrderStatusPlaced}}
	handler := CheckoutPlaceCod(svc, nil)

	req := checkoutRequest(http.MethodPost, "/api/v1/checkout/cod", `{"addressId":"`+addressID.String()+`"}`)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastInput == nil || svc.lastInput.AddressID == nil {
		t.Fatalf("address id not passed through")
	}
	if *svc.lastInput.AddressID != addressID {
		t.Fatalf("wrong address id: %s", svc.lastInput.AddressID)
	}
}

func TestCheckoutPlaceCodPassesContactThrough(t *testing.T) {
	svc := &stubCheckoutService{order: &models.Order{ID: uuid.New(), Status: enums.OrderStatusPlaced}}
	handler := CheckoutPlaceCod(svc, nil)

	body := `{"contact":{"name":"Ravi Rao","phone":"9000000001","email":"ravi@example.com"}}`
	req := checkoutRequest(http.MethodPost, "/api/v1/checkout/cod", body)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastInput == nil {
		t.Fatalf("service not reached")
	}
	if svc.lastInput.Contact.Name != "Ravi Rao" || svc.lastInput.Contact.Phone != "9000000001" {
		t.Fatalf("contact not passed through: %+v", svc.lastInput.Contact)
	}
	if svc.lastInput.Contact.Email != "ravi@example.com" {
		t.Fatalf("contact email not passed through: %+v", svc.lastInput.Contact)
	}
}

func TestCheckoutPlaceCodAllowsEmptyBody(t *testing.T) {
	svc := &stubCheckoutService{order: &models.Order{ID: uuid.New(), Status: enums.OrderStatusPlaced}}
	handler := CheckoutPlaceCod(svc, nil)

	req := checkoutRequest(http.MethodPost, "/api/v1/checkout/cod", "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastInput == nil {
		t.Fatalf("service not reached")
	}
	if svc.lastInput.AddressID != nil {
		t.Fatalf("expected nil address id for default resolution")
	}
}

func TestCheckoutPlaceCodSurfacesStockConflict(t *testing.T) {
	lineID := uuid.New()
	conflict := pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").WithDetails(map[string]any{
		"itemId":    lineID.String(),
		"available": 2,
	})
	handler := CheckoutPlaceCod(&stubCheckoutService{err: conflict}, nil)

	req := checkoutRequest(http.MethodPost, "/api/v1/checkout/cod", "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeConflict) {
		t.Fatalf("wrong code: %s", envelope.Error.Code)
	}
	if envelope.Error.Details["available"] != float64(2) {
		t.Fatalf("available count missing from details: %v", envelope.Error.Details)
	}
}
