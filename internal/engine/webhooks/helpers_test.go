package webhooks

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"authhooks/internal/platform/models"
	"authhooks/internal/platform/repositories"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	// In-memory sqlite gives every connection its own database; pin the
	// pool to one connection so all test queries see the same schema.
	db.SetMaxOpenConns(1)

	query := `
	CREATE TABLE webhooks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		secret TEXT NOT NULL,
		events TEXT NOT NULL DEFAULT '[]',
		headers TEXT NOT NULL DEFAULT '{}',
		method TEXT NOT NULL DEFAULT 'POST',
		is_active INTEGER NOT NULL DEFAULT 1,
		timeout_seconds INTEGER NOT NULL DEFAULT 30,
		max_retries INTEGER NOT NULL DEFAULT 3,
		verify_tls INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL DEFAULT 1,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		last_triggered_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		deleted_at INTEGER
	);
	CREATE TABLE webhook_deliveries (
		id TEXT PRIMARY KEY,
		webhook_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		event TEXT NOT NULL,
		payload TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		status TEXT NOT NULL,
		success INTEGER NOT NULL DEFAULT 0,
		status_code INTEGER NOT NULL DEFAULT 0,
		response_body TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		is_test INTEGER NOT NULL DEFAULT 0,
		request_headers TEXT NOT NULL DEFAULT '{}',
		response_headers TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		delivered_at INTEGER
	);
	CREATE TABLE webhook_stats (
		webhook_id TEXT PRIMARY KEY,
		total INTEGER NOT NULL DEFAULT 0,
		successful INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		avg_response_ms REAL NOT NULL DEFAULT 0,
		last_delivery_at INTEGER,
		by_day TEXT NOT NULL DEFAULT '{}',
		by_event TEXT NOT NULL DEFAULT '{}',
		recent TEXT NOT NULL DEFAULT '[]',
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE audit_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return db
}

type testEnv struct {
	db       *sql.DB
	webhooks *repositories.WebhookRepository
	delivers *repositories.DeliveryRepository
	stats    *repositories.StatsRepository
	recorder *Recorder
	sender   *Sender
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	webhooks := repositories.NewWebhookRepository(db)
	delivers := repositories.NewDeliveryRepository(db)
	stats := repositories.NewStatsRepository(db)

	return &testEnv{
		db:       db,
		webhooks: webhooks,
		delivers: delivers,
		stats:    stats,
		recorder: NewRecorder(delivers, stats, webhooks, 50, 90),
		sender:   NewSender(),
	}
}

func (e *testEnv) createWebhook(t *testing.T, url string, events []string, maxRetries int) *models.Webhook {
	t.Helper()

	webhook := &models.Webhook{
		Name:           "test hook",
		URL:            url,
		Secret:         "whsec_0123456789abcdef",
		Events:         events,
		Method:         "POST",
		IsActive:       true,
		TimeoutSeconds: 5,
		MaxRetries:     maxRetries,
		VerifyTLS:      true,
	}
	if err := e.webhooks.Create(webhook); err != nil {
		t.Fatalf("Failed to create webhook: %v", err)
	}
	return webhook
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
