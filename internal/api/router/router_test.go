package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pharmaflow/pharmacy-assistant/internal/chat"
	"github.com/pharmaflow/pharmacy-assistant/internal/http/handlers"
	"github.com/pharmaflow/pharmacy-assistant/internal/orders"
	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"
)

type staticDispatcher struct {
	resp chat.TurnResponse
}

func (d *staticDispatcher) ProcessTurn(_ context.Context, _ chat.TurnRequest) (*chat.TurnResponse, error) {
	resp := d.resp
	return &resp, nil
}

func (d *staticDispatcher) Shutdown(_ context.Context) error { return nil }

func newTestRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()

	logger := logging.Default()
	dispatcher := &staticDispatcher{resp: chat.TurnResponse{Type: chat.ResponseText, Message: "Hello"}}
	chatHandler := chat.NewHandler(dispatcher, nil, nil, logger)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	scanner := orders.NewScanner(orders.NewStore(db), nil, logger)

	cfg := &Config{
		Logger:          logger,
		ChatHandler:     chatHandler,
		AdminRefill:     handlers.NewAdminRefillHandler(scanner, logger),
		AdminAuthSecret: "test-secret",
	}

	return New(cfg), mock
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterChatEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"patient_id": "p1", "message": "hello"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp chat.TurnResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode chat response: %v", err)
	}
	if resp.Message != "Hello" {
		t.Errorf("expected message 'Hello', got %q", resp.Message)
	}
}

func TestRouterAdminRequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/refills/scan", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterAdminAllowsValidToken(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery(`SELECT DISTINCT patient_id`).
		WillReturnRows(sqlmock.NewRows([]string{"patient_id"}))

	claims := jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/refills/scan", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d (body: %s)", http.StatusOK, rr.Code, rr.Body.String())
	}
}

func TestRouterJobStatusWithoutStore(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/chat/jobs/abc", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}
