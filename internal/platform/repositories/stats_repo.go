package repositories

import (
	"database/sql"
	"encoding/json"

	"authhooks/internal/platform/models"
)

// StatsRepository persists the materialized per-webhook rollup. The
// recorder serializes writers per webhook, so upserts here never race
// for the same row.
type StatsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Get returns the rollup for a webhook, or a zero-valued rollup when no
// delivery has been recorded yet.
func (r *StatsRepository) Get(webhookID string) (*models.WebhookStats, error) {
	row := r.db.QueryRow(`
		SELECT webhook_id, total, successful, failed, avg_response_ms,
			last_delivery_at, by_day, by_event, recent, updated_at
		FROM webhook_stats WHERE webhook_id = ?`, webhookID)

	s := &models.WebhookStats{WebhookID: webhookID}
	var byDay, byEvent, recent sql.NullString
	var lastDeliveryAt sql.NullInt64

	err := row.Scan(&s.WebhookID, &s.Total, &s.Successful, &s.Failed, &s.AvgResponseMs,
		&lastDeliveryAt, &byDay, &byEvent, &recent, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		s.ByDay = map[string]int64{}
		s.ByEvent = map[string]int64{}
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	if lastDeliveryAt.Valid {
		s.LastDeliveryAt = &lastDeliveryAt.Int64
	}
	s.ByDay = map[string]int64{}
	if byDay.Valid && byDay.String != "" {
		json.Unmarshal([]byte(byDay.String), &s.ByDay)
	}
	s.ByEvent = map[string]int64{}
	if byEvent.Valid && byEvent.String != "" {
		json.Unmarshal([]byte(byEvent.String), &s.ByEvent)
	}
	if recent.Valid && recent.String != "" {
		json.Unmarshal([]byte(recent.String), &s.Recent)
	}

	if s.Total > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.Total)
	}

	return s, nil
}

func (r *StatsRepository) Upsert(s *models.WebhookStats) error {
	byDay, err := json.Marshal(s.ByDay)
	if err != nil {
		return err
	}
	byEvent, err := json.Marshal(s.ByEvent)
	if err != nil {
		return err
	}
	recent, err := json.Marshal(s.Recent)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhook_stats (webhook_id, total, successful, failed, avg_response_ms,
			last_delivery_at, by_day, by_event, recent, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(webhook_id) DO UPDATE SET
			total = excluded.total,
			successful = excluded.successful,
			failed = excluded.failed,
			avg_response_ms = excluded.avg_response_ms,
			last_delivery_at = excluded.last_delivery_at,
			by_day = excluded.by_day,
			by_event = excluded.by_event,
			recent = excluded.recent,
			updated_at = excluded.updated_at
	`
	_, err = r.db.Exec(query, s.WebhookID, s.Total, s.Successful, s.Failed, s.AvgResponseMs,
		s.LastDeliveryAt, string(byDay), string(byEvent), string(recent), s.UpdatedAt)
	return err
}
