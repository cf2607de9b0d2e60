package repositories

import (
	"database/sql"
	"encoding/json"

	"authhooks/internal/platform/models"
)

// DeliveryRepository is the append-only delivery log. Rows are inserted by
// the delivery engine and never updated afterwards.
type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

const deliveryColumns = `id, webhook_id, event_id, event, payload, attempt, status, success,
	status_code, response_body, error, response_time_ms, is_test,
	request_headers, response_headers, created_at, delivered_at`

func (r *DeliveryRepository) Insert(d *models.WebhookDelivery) error {
	reqHeaders, err := json.Marshal(d.RequestHeaders)
	if err != nil {
		return err
	}
	respHeaders, err := json.Marshal(d.ResponseHeaders)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhook_deliveries (id, webhook_id, event_id, event, payload, attempt, status,
			success, status_code, response_body, error, response_time_ms, is_test,
			request_headers, response_headers, created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		d.ID, d.WebhookID, d.EventID, d.Event, string(d.Payload), d.Attempt, d.Status,
		d.Success, d.StatusCode, d.ResponseBody, d.Error, d.ResponseTimeMs, d.IsTest,
		string(reqHeaders), string(respHeaders), d.CreatedAt, d.DeliveredAt)
	return err
}

func (r *DeliveryRepository) GetByID(id string) (*models.WebhookDelivery, error) {
	row := r.db.QueryRow(`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = ?`, id)
	d, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// ListByWebhook pages through a webhook's delivery history, newest first.
// page is 1-based. Returns the page plus the total row count so callers
// can derive hasNext/hasPrevious.
func (r *DeliveryRepository) ListByWebhook(webhookID string, page, limit int) ([]*models.WebhookDelivery, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	var total int64
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM webhook_deliveries WHERE webhook_id = ?`, webhookID).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	rows, err := r.db.Query(`SELECT `+deliveryColumns+` FROM webhook_deliveries
		WHERE webhook_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		webhookID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, total, rows.Err()
}

func (r *DeliveryRepository) CountByWebhook(webhookID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM webhook_deliveries WHERE webhook_id = ?`, webhookID).Scan(&n)
	return n, err
}

func scanDelivery(row rowScanner) (*models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	var payload, responseBody, errMsg, reqHeaders, respHeaders sql.NullString
	var statusCode sql.NullInt64
	var deliveredAt sql.NullInt64

	err := row.Scan(&d.ID, &d.WebhookID, &d.EventID, &d.Event, &payload, &d.Attempt, &d.Status,
		&d.Success, &statusCode, &responseBody, &errMsg, &d.ResponseTimeMs, &d.IsTest,
		&reqHeaders, &respHeaders, &d.CreatedAt, &deliveredAt)
	if err != nil {
		return nil, err
	}

	if payload.Valid {
		d.Payload = json.RawMessage(payload.String)
	}
	if statusCode.Valid {
		d.StatusCode = int(statusCode.Int64)
	}
	if responseBody.Valid {
		d.ResponseBody = responseBody.String
	}
	if errMsg.Valid {
		d.Error = errMsg.String
	}
	if deliveredAt.Valid {
		d.DeliveredAt = &deliveredAt.Int64
	}
	if reqHeaders.Valid && reqHeaders.String != "" && reqHeaders.String != "null" {
		json.Unmarshal([]byte(reqHeaders.String), &d.RequestHeaders)
	}
	if respHeaders.Valid && respHeaders.String != "" && respHeaders.String != "null" {
		json.Unmarshal([]byte(respHeaders.String), &d.ResponseHeaders)
	}

	return &d, nil
}
