package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"authhooks/internal/api/handlers"
	"authhooks/internal/api/middleware"
	"authhooks/internal/engine/webhooks"
	"authhooks/internal/platform/audit"
	"authhooks/internal/platform/auth"
	"authhooks/internal/platform/config"
	"authhooks/internal/platform/models"
	"authhooks/internal/platform/repositories"
)

type apiTest struct {
	router   http.Handler
	tokenSvc *auth.TokenService
	db       *sql.DB
	delivers *repositories.DeliveryRepository
}

func setupAPI(t *testing.T) *apiTest {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE webhooks (
		id TEXT PRIMARY KEY, name TEXT NOT NULL, description TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL, secret TEXT NOT NULL, events TEXT NOT NULL DEFAULT '[]',
		headers TEXT NOT NULL DEFAULT '{}', method TEXT NOT NULL DEFAULT 'POST',
		is_active INTEGER NOT NULL DEFAULT 1, timeout_seconds INTEGER NOT NULL DEFAULT 30,
		max_retries INTEGER NOT NULL DEFAULT 3, verify_tls INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL DEFAULT 1, success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0, last_triggered_at INTEGER,
		created_at INTEGER NOT NULL, updated_at INTEGER NOT NULL, deleted_at INTEGER
	);
	CREATE TABLE webhook_deliveries (
		id TEXT PRIMARY KEY, webhook_id TEXT NOT NULL, event_id TEXT NOT NULL,
		event TEXT NOT NULL, payload TEXT NOT NULL, attempt INTEGER NOT NULL,
		status TEXT NOT NULL, success INTEGER NOT NULL DEFAULT 0,
		status_code INTEGER NOT NULL DEFAULT 0, response_body TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '', response_time_ms INTEGER NOT NULL DEFAULT 0,
		is_test INTEGER NOT NULL DEFAULT 0, request_headers TEXT NOT NULL DEFAULT '{}',
		response_headers TEXT NOT NULL DEFAULT '{}', created_at INTEGER NOT NULL,
		delivered_at INTEGER
	);
	CREATE TABLE webhook_stats (
		webhook_id TEXT PRIMARY KEY, total INTEGER NOT NULL DEFAULT 0,
		successful INTEGER NOT NULL DEFAULT 0, failed INTEGER NOT NULL DEFAULT 0,
		avg_response_ms REAL NOT NULL DEFAULT 0, last_delivery_at INTEGER,
		by_day TEXT NOT NULL DEFAULT '{}', by_event TEXT NOT NULL DEFAULT '{}',
		recent TEXT NOT NULL DEFAULT '[]', updated_at INTEGER NOT NULL
	);
	CREATE TABLE audit_logs (
		id TEXT PRIMARY KEY, user_id TEXT NOT NULL DEFAULT '', action TEXT NOT NULL,
		resource_type TEXT NOT NULL, resource_id TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}', created_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	statsRepo := repositories.NewStatsRepository(db)

	recorder := webhooks.NewRecorder(deliveryRepo, statsRepo, webhookRepo, 50, 90)
	sender := webhooks.NewSender()
	svc := webhooks.NewService(webhookRepo, audit.NewLogger(db), 30, 3)
	tester := webhooks.NewTester(webhookRepo, recorder, sender)

	tokenSvc := auth.NewTokenService(config.JWTConfig{
		Secret:         "test-secret",
		AccessTokenTTL: time.Hour,
	})

	router := NewRouter(&Dependencies{
		WebhookHandler: handlers.NewWebhookHandler(svc, tester, recorder, deliveryRepo),
		HealthHandler:  handlers.NewHealthHandler(db),
		AuthMiddleware: middleware.NewAuthMiddleware(tokenSvc),
	})

	return &apiTest{router: router, tokenSvc: tokenSvc, db: db, delivers: deliveryRepo}
}

func (a *apiTest) do(t *testing.T, method, path, role string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		token, err := a.tokenSvc.GenerateAccessToken("usr_1", role, "admin@example.com")
		if err != nil {
			t.Fatalf("token generation failed: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func createBody() map[string]interface{} {
	return map[string]interface{}{
		"name":   "hook",
		"url":    "https://example.com/hook",
		"events": []string{"user.login"},
	}
}

func TestWebhookEndpointsRequireAuth(t *testing.T) {
	a := setupAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/webhooks", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated list = %d, want 401", rec.Code)
	}

	rec = a.do(t, http.MethodPost, "/api/v1/webhooks", "member", createBody())
	if rec.Code != http.StatusForbidden {
		t.Errorf("member create = %d, want 403", rec.Code)
	}
}

func TestWebhookCRUDFlow(t *testing.T) {
	a := setupAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/webhooks", "admin", createBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}
	var created models.Webhook
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.Secret == "" {
		t.Error("create response missing secret")
	}

	rec = a.do(t, http.MethodGet, "/api/v1/webhooks/"+created.ID, "admin", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	var fetched models.Webhook
	json.Unmarshal(rec.Body.Bytes(), &fetched)
	if fetched.Secret != "" {
		t.Error("get response leaked secret")
	}

	rec = a.do(t, http.MethodPatch, "/api/v1/webhooks/"+created.ID, "admin",
		map[string]interface{}{"name": "renamed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", rec.Code, rec.Body.String())
	}

	rec = a.do(t, http.MethodDelete, "/api/v1/webhooks/"+created.ID, "admin", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/webhooks/"+created.ID, "admin", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
}

func TestWebhookCreateInvalid(t *testing.T) {
	a := setupAPI(t)

	body := createBody()
	body["events"] = []string{"bogus.event"}

	rec := a.do(t, http.MethodPost, "/api/v1/webhooks", "admin", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid create = %d, want 400", rec.Code)
	}
	var errResp struct {
		Code string `json:"code"`
	}
	json.Unmarshal(rec.Body.Bytes(), &errResp)
	if errResp.Code != "INVALID_INPUT" {
		t.Errorf("error code = %q, want INVALID_INPUT", errResp.Code)
	}
}

func TestDeliveriesPagination(t *testing.T) {
	a := setupAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/webhooks", "admin", createBody())
	var created models.Webhook
	json.Unmarshal(rec.Body.Bytes(), &created)

	for i := 0; i < 15; i++ {
		a.delivers.Insert(&models.WebhookDelivery{
			ID: fmt.Sprintf("whd_%03d", i), WebhookID: created.ID,
			EventID: fmt.Sprintf("evt_%03d", i), Event: "user.login",
			Payload: []byte(`{}`), Attempt: 1,
			Status: models.DeliveryStatusDelivered, Success: true,
			CreatedAt: int64(1700000000 + i),
		})
	}

	rec = a.do(t, http.MethodGet, "/api/v1/webhooks/"+created.ID+"/deliveries?page=1&limit=10", "admin", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deliveries = %d: %s", rec.Code, rec.Body.String())
	}
	var page struct {
		Deliveries  []models.WebhookDelivery `json:"deliveries"`
		Total       int64                    `json:"total"`
		HasNext     bool                     `json:"has_next"`
		HasPrevious bool                     `json:"has_previous"`
	}
	json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Total != 15 || len(page.Deliveries) != 10 {
		t.Errorf("page 1: total=%d rows=%d, want 15/10", page.Total, len(page.Deliveries))
	}
	if !page.HasNext || page.HasPrevious {
		t.Errorf("page 1 flags: next=%v prev=%v, want true/false", page.HasNext, page.HasPrevious)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/webhooks/"+created.ID+"/deliveries?page=2&limit=10", "admin", nil)
	json.Unmarshal(rec.Body.Bytes(), &page)
	if len(page.Deliveries) != 5 || page.HasNext || !page.HasPrevious {
		t.Errorf("page 2: rows=%d next=%v prev=%v, want 5/false/true", len(page.Deliveries), page.HasNext, page.HasPrevious)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/webhooks/wh_missing/deliveries", "admin", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("deliveries for missing webhook = %d, want 404", rec.Code)
	}
}

func TestEventCatalogEndpoint(t *testing.T) {
	a := setupAPI(t)

	// Catalog is readable by any authenticated user, no admin role needed.
	rec := a.do(t, http.MethodGet, "/api/v1/webhook-events", "member", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("catalog = %d", rec.Code)
	}
	var resp struct {
		Events []webhooks.CatalogEvent `json:"events"`
		Total  int                     `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total == 0 || len(resp.Events) != resp.Total {
		t.Errorf("catalog total=%d len=%d", resp.Total, len(resp.Events))
	}

	rec = a.do(t, http.MethodGet, "/api/v1/webhook-events?category=security", "member", nil)
	json.Unmarshal(rec.Body.Bytes(), &resp)
	for _, e := range resp.Events {
		if e.Category != "security" {
			t.Errorf("category filter leaked event %s (%s)", e.Name, e.Category)
		}
	}
}

func TestTestEndpoint(t *testing.T) {
	a := setupAPI(t)

	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get("X-Webhook-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	body := createBody()
	body["url"] = server.URL
	rec := a.do(t, http.MethodPost, "/api/v1/webhooks", "admin", body)
	var created models.Webhook
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = a.do(t, http.MethodPost, "/api/v1/webhooks/"+created.ID+"/test", "admin",
		map[string]string{"event": "user.login"})
	if rec.Code != http.StatusOK {
		t.Fatalf("test = %d: %s", rec.Code, rec.Body.String())
	}
	var result webhooks.TestResult
	json.Unmarshal(rec.Body.Bytes(), &result)
	if !result.Success || result.StatusCode != 200 {
		t.Errorf("test result = %+v", result)
	}

	select {
	case ev := <-received:
		if ev != "user.login" {
			t.Errorf("receiver saw event %q", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("receiver never hit")
	}
}

func TestRegenerateSecretEndpoint(t *testing.T) {
	a := setupAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/webhooks", "admin", createBody())
	var created models.Webhook
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = a.do(t, http.MethodPost, "/api/v1/webhooks/"+created.ID+"/secret", "admin", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("regenerate = %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["secret"] == "" || resp["secret"] == created.Secret {
		t.Error("secret not rotated")
	}
}

func TestHealthEndpoint(t *testing.T) {
	a := setupAPI(t)

	rec := a.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health = %d, want 200", rec.Code)
	}
}
