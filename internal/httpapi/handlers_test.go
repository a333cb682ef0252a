package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"noorcreations/backend/internal/cache"
	"noorcreations/backend/internal/domain"
	"noorcreations/backend/internal/service"
	"noorcreations/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	svc := service.New(repo, cache.NoopListingCache{}, log, "Noor Creations")
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)

	return New(svc, auth, "*", log)
}

// loginAs logs a seeded account in and returns its bearer token.
func loginAs(t *testing.T, api *API, username, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d %s", username, rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		t.Fatal("expected access token in login response")
	}
	return resp.AccessToken
}

// doJSON issues an authenticated JSON request with a valid CSRF token.
func doJSON(t *testing.T, api *API, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func lookupProduct(t *testing.T, api *API, token, sku string) domain.Product {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/lookup?sku="+sku, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup %s failed: %d %s", sku, rec.Code, rec.Body.String())
	}

	var product domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&product); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	return product
}

func checkout(t *testing.T, api *API, token string, req domain.CheckoutRequest) domain.CheckoutResponse {
	t.Helper()

	rec := doJSON(t, api, http.MethodPost, "/api/v1/billing/checkout", token, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp domain.CheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode checkout response: %v", err)
	}
	return resp
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	payload, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProductsRequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProductsWithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["products"] == nil {
		t.Fatalf("expected products key in response, got %v", body)
	}
}

func TestProductLookupUnknownSKUReturns404(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/lookup?sku=NO-SUCH-SKU", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCheckoutCreatesOrderAndDebitsStock(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	product := lookupProduct(t, api, token, "NC-KUR-001")

	resp := checkout(t, api, token, domain.CheckoutRequest{
		Items:   []domain.CartLine{{ProductID: product.ID, Quantity: 2}},
		Payment: domain.Payment{Method: domain.PaymentMethodCash},
	})

	if resp.Order.ID == "" || resp.Invoice.InvoiceNumber == "" {
		t.Fatalf("incomplete checkout response: %+v", resp)
	}
	if !strings.Contains(resp.ReceiptHTML, resp.Invoice.InvoiceNumber) {
		t.Fatal("receipt should embed the invoice number")
	}

	after := lookupProduct(t, api, token, "NC-KUR-001")
	if after.StockQuantity != product.StockQuantity-2 {
		t.Fatalf("expected stock %d, got %d", product.StockQuantity-2, after.StockQuantity)
	}
}

func TestCheckoutWithoutCSRFRejected(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	product := lookupProduct(t, api, token, "NC-KUR-001")

	raw, _ := json.Marshal(domain.CheckoutRequest{
		Items:   []domain.CartLine{{ProductID: product.ID, Quantity: 1}},
		Payment: domain.Payment{Method: domain.PaymentMethodCash},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}
}

func TestCheckoutOversellReturns409(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	product := lookupProduct(t, api, token, "NC-LEH-001")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/billing/checkout", token, domain.CheckoutRequest{
		Items:   []domain.CartLine{{ProductID: product.ID, Quantity: product.StockQuantity + 1}},
		Payment: domain.Payment{Method: domain.PaymentMethodCash},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on oversell, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCheckoutRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout",
		strings.NewReader(`{"items":[],"bogus":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestExchangeEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	sold := lookupProduct(t, api, token, "NC-KUR-001")
	replacement := lookupProduct(t, api, token, "NC-DUP-001")

	sale := checkout(t, api, token, domain.CheckoutRequest{
		Items:   []domain.CartLine{{ProductID: sold.ID, Quantity: 1}},
		Payment: domain.Payment{Method: domain.PaymentMethodCash},
	})

	rec := doJSON(t, api, http.MethodPost, "/api/v1/orders/"+sale.Order.ID+"/exchange", token, domain.ExchangeRequest{
		Replacements: []domain.ExchangeLine{{ProductID: replacement.ID, Quantity: 1}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("exchange failed: %d %s", rec.Code, rec.Body.String())
	}

	var resp domain.ExchangeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode exchange response: %v", err)
	}
	if resp.Balance == "" {
		t.Fatalf("expected balance in response, got %+v", resp)
	}
	if len(resp.Order.Items) != 1 || resp.Order.Items[0].ProductID == nil || *resp.Order.Items[0].ProductID != replacement.ID {
		t.Fatalf("expected replacement item on order, got %+v", resp.Order.Items)
	}
}

func TestReceiptEndpointServesHTML(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	product := lookupProduct(t, api, token, "NC-SAR-001")

	sale := checkout(t, api, token, domain.CheckoutRequest{
		Items:   []domain.CartLine{{ProductID: product.ID, Quantity: 1}},
		Payment: domain.Payment{Method: domain.PaymentMethodCard},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+sale.Order.ID+"/receipt", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("receipt failed: %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("expected text/html, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Noor Creations") {
		t.Fatal("receipt should carry the store name")
	}
}

func TestDeleteOrderNeedsManagerPINForCashier(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	product := lookupProduct(t, api, token, "NC-SUI-001")

	sale := checkout(t, api, token, domain.CheckoutRequest{
		Items:   []domain.CartLine{{ProductID: product.ID, Quantity: 1}},
		Payment: domain.Payment{Method: domain.PaymentMethodCash},
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/orders/"+sale.Order.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without manager PIN, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/orders/"+sale.Order.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	req.Header.Set("X-Manager-PIN", "123456")
	rec = httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with manager PIN, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	after := lookupProduct(t, api, token, "NC-SUI-001")
	if after.StockQuantity != product.StockQuantity {
		t.Fatalf("expected stock restored to %d, got %d", product.StockQuantity, after.StockQuantity)
	}
}

func TestCashierCannotCreateProducts(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := doJSON(t, api, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		SKU:   "NC-NEW-001",
		Name:  "SAREE - New Arrival",
		Price: decimal.NewFromInt(1500),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier product create, got %d", rec.Code)
	}
}

func TestCashierCannotAccessImports(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/imports/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier on imports, got %d", rec.Code)
	}
}

func TestOrdersCSVExport(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "admin", "admin123")
	product := lookupProduct(t, api, token, "NC-GWN-001")

	checkout(t, api, token, domain.CheckoutRequest{
		Items:   []domain.CartLine{{ProductID: product.ID, Quantity: 1}},
		Payment: domain.Payment{Method: domain.PaymentMethodCash},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?format=csv", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("csv export failed: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected text/csv, got %q", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "id,order_number,status,") {
		t.Fatalf("unexpected csv header: %q", strings.SplitN(body, "\n", 2)[0])
	}
	if len(strings.Split(strings.TrimSpace(body), "\n")) < 2 {
		t.Fatal("expected at least one data row")
	}
}
