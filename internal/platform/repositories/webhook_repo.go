package repositories

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"authhooks/internal/platform/models"
)

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

const webhookColumns = `id, name, description, url, secret, events, headers, method,
	is_active, timeout_seconds, max_retries, verify_tls, version,
	success_count, failure_count, last_triggered_at, created_at, updated_at, deleted_at`

func (r *WebhookRepository) Create(webhook *models.Webhook) error {
	webhook.ID = "wh_" + uuid.New().String()
	webhook.Version = 1
	webhook.CreatedAt = time.Now().Unix()
	webhook.UpdatedAt = webhook.CreatedAt

	eventsJSON, err := json.Marshal(webhook.Events)
	if err != nil {
		return err
	}
	headersJSON, err := json.Marshal(webhook.Headers)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhooks (id, name, description, url, secret, events, headers, method,
			is_active, timeout_seconds, max_retries, verify_tls, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		webhook.ID, webhook.Name, webhook.Description, webhook.URL, webhook.Secret,
		string(eventsJSON), string(headersJSON), webhook.Method,
		webhook.IsActive, webhook.TimeoutSeconds, webhook.MaxRetries, webhook.VerifyTLS,
		webhook.Version, webhook.CreatedAt, webhook.UpdatedAt)
	return err
}

func (r *WebhookRepository) GetByID(id string) (*models.Webhook, error) {
	row := r.db.QueryRow(`SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id)
	w, err := scanWebhook(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return w, err
}

func (r *WebhookRepository) List() ([]*models.Webhook, error) {
	rows, err := r.db.Query(`SELECT ` + webhookColumns + ` FROM webhooks WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var webhooks []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

// GetByEvent returns active, non-deleted webhooks subscribed to the event.
// Events are stored as a JSON array, so the subscription filter happens
// after the scan; registries are small enough that this stays cheap.
func (r *WebhookRepository) GetByEvent(event string) ([]*models.Webhook, error) {
	rows, err := r.db.Query(`SELECT ` + webhookColumns + ` FROM webhooks WHERE is_active = 1 AND deleted_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matched []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		if w.Subscribed(event) {
			matched = append(matched, w)
		}
	}
	return matched, rows.Err()
}

// Update persists a read-modify-write edit. The version predicate rejects
// writes against a record someone else changed since the read.
func (r *WebhookRepository) Update(webhook *models.Webhook) error {
	eventsJSON, err := json.Marshal(webhook.Events)
	if err != nil {
		return err
	}
	headersJSON, err := json.Marshal(webhook.Headers)
	if err != nil {
		return err
	}
	webhook.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE webhooks
		SET name = ?, description = ?, url = ?, secret = ?, events = ?, headers = ?, method = ?,
			is_active = ?, timeout_seconds = ?, max_retries = ?, verify_tls = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := r.db.Exec(query,
		webhook.Name, webhook.Description, webhook.URL, webhook.Secret,
		string(eventsJSON), string(headersJSON), webhook.Method,
		webhook.IsActive, webhook.TimeoutSeconds, webhook.MaxRetries, webhook.VerifyTLS,
		webhook.UpdatedAt, webhook.ID, webhook.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	webhook.Version++
	return nil
}

func (r *WebhookRepository) SetActive(id string, active bool) error {
	res, err := r.db.Exec(`UPDATE webhooks SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// SoftDelete deactivates the webhook and stamps deleted_at. Delivery
// history is kept for the audit trail.
func (r *WebhookRepository) SoftDelete(id string) error {
	now := time.Now().Unix()
	res, err := r.db.Exec(`UPDATE webhooks SET is_active = 0, deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (r *WebhookRepository) HardDelete(id string) error {
	res, err := r.db.Exec(`DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// RecordOutcome bumps the cumulative counters kept on the webhook row.
// This is the only mutation the delivery engine performs on the registry.
func (r *WebhookRepository) RecordOutcome(id string, success bool, at int64) error {
	var err error
	if success {
		_, err = r.db.Exec(`UPDATE webhooks SET success_count = success_count + 1, last_triggered_at = ? WHERE id = ?`, at, id)
	} else {
		_, err = r.db.Exec(`UPDATE webhooks SET failure_count = failure_count + 1 WHERE id = ?`, id)
	}
	return err
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	var w models.Webhook
	var description, eventsStr, headersStr sql.NullString
	var lastTriggeredAt, deletedAt sql.NullInt64

	err := row.Scan(&w.ID, &w.Name, &description, &w.URL, &w.Secret, &eventsStr, &headersStr,
		&w.Method, &w.IsActive, &w.TimeoutSeconds, &w.MaxRetries, &w.VerifyTLS, &w.Version,
		&w.SuccessCount, &w.FailureCount, &lastTriggeredAt, &w.CreatedAt, &w.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		w.Description = description.String
	}
	if lastTriggeredAt.Valid {
		w.LastTriggeredAt = &lastTriggeredAt.Int64
	}
	if deletedAt.Valid {
		w.DeletedAt = &deletedAt.Int64
	}
	if eventsStr.Valid && eventsStr.String != "" {
		json.Unmarshal([]byte(eventsStr.String), &w.Events)
	}
	if headersStr.Valid && headersStr.String != "" && headersStr.String != "null" {
		json.Unmarshal([]byte(headersStr.String), &w.Headers)
	}

	return &w, nil
}
