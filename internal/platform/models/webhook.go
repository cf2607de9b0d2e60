package models

import "encoding/json"

// Delivery terminal states. "retrying" means a follow-up attempt has been
// scheduled; "exhausted" means a retryable failure ran out of attempts,
// which is tracked separately from "failed" (terminal failures like 4xx).
const (
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusRetrying  = "retrying"
	DeliveryStatusFailed    = "failed"
	DeliveryStatusExhausted = "exhausted"
)

type Webhook struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	URL             string            `json:"url"`
	Secret          string            `json:"secret,omitempty"` // only populated on create/rotate responses
	Events          []string          `json:"events"`           // JSON array in DB
	Headers         map[string]string `json:"headers,omitempty"`
	Method          string            `json:"method"`
	IsActive        bool              `json:"is_active"`
	TimeoutSeconds  int               `json:"timeout_seconds"`
	MaxRetries      int               `json:"max_retries"`
	VerifyTLS       bool              `json:"verify_tls"`
	Version         int               `json:"version"`
	SuccessCount    int64             `json:"success_count"`
	FailureCount    int64             `json:"failure_count"`
	LastTriggeredAt *int64            `json:"last_triggered_at,omitempty"`
	CreatedAt       int64             `json:"created_at"`
	UpdatedAt       int64             `json:"updated_at"`
	DeletedAt       *int64            `json:"deleted_at,omitempty"`
}

// Subscribed reports whether the webhook listens for the given event.
func (w *Webhook) Subscribed(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Redacted returns a copy safe to hand back from list/read endpoints.
// The secret is write-once visible: creation and rotation only.
func (w *Webhook) Redacted() *Webhook {
	c := *w
	c.Secret = ""
	return &c
}

// WebhookEvent is the envelope sent to receivers. ID is stable across
// retries of the same occurrence so receivers can deduplicate.
type WebhookEvent struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Timestamp int64       `json:"timestamp"`
	Test      bool        `json:"test,omitempty"`
	Data      interface{} `json:"data"`
}

// WebhookDelivery is one immutable attempt record. Rows are append-only;
// retries insert new rows with an incremented attempt number.
type WebhookDelivery struct {
	ID              string            `json:"id"`
	WebhookID       string            `json:"webhook_id"`
	EventID         string            `json:"event_id"`
	Event           string            `json:"event"`
	Payload         json.RawMessage   `json:"payload"`
	Attempt         int               `json:"attempt"` // 1-based, never exceeds max_retries+1
	Status          string            `json:"status"`
	Success         bool              `json:"success"`
	StatusCode      int               `json:"status_code,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	Error           string            `json:"error,omitempty"`
	ResponseTimeMs  int64             `json:"response_time_ms"`
	IsTest          bool              `json:"is_test,omitempty"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	CreatedAt       int64             `json:"created_at"`
	DeliveredAt     *int64            `json:"delivered_at,omitempty"`
}

// RecentDelivery is the compact entry kept in the stats rollup window.
type RecentDelivery struct {
	ID         string `json:"id"`
	Event      string `json:"event"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	At         int64  `json:"at"`
}

// WebhookStats is the materialized per-webhook rollup, maintained
// incrementally by the delivery recorder. successful + failed == total.
type WebhookStats struct {
	WebhookID      string           `json:"webhook_id"`
	Total          int64            `json:"total"`
	Successful     int64            `json:"successful"`
	Failed         int64            `json:"failed"`
	SuccessRate    float64          `json:"success_rate"`
	AvgResponseMs  float64          `json:"avg_response_time_ms"`
	LastDeliveryAt *int64           `json:"last_delivery_at,omitempty"`
	ByDay          map[string]int64 `json:"by_day"`
	ByEvent        map[string]int64 `json:"by_event"`
	Recent         []RecentDelivery `json:"recent_deliveries"`
	UpdatedAt      int64            `json:"updated_at"`
}
