package webhooks

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"authhooks/internal/platform/models"
	"authhooks/internal/platform/repositories"
)

const dayBucketFormat = "2006-01-02"

// Recorder appends delivery rows and incrementally maintains the
// per-webhook stats rollup. Updates for one webhook are serialized
// through a striped lock so concurrent deliveries never lose counts.
type Recorder struct {
	deliveries *repositories.DeliveryRepository
	stats      *repositories.StatsRepository
	webhooks   *repositories.WebhookRepository

	recentCap    int
	dayRetention int

	locks [64]sync.Mutex
}

func NewRecorder(deliveries *repositories.DeliveryRepository, stats *repositories.StatsRepository, webhooks *repositories.WebhookRepository, recentCap, dayRetention int) *Recorder {
	if recentCap <= 0 {
		recentCap = 50
	}
	if dayRetention <= 0 {
		dayRetention = 90
	}
	return &Recorder{
		deliveries:   deliveries,
		stats:        stats,
		webhooks:     webhooks,
		recentCap:    recentCap,
		dayRetention: dayRetention,
	}
}

// Record appends the attempt to the delivery log and folds it into the
// rollup. A store failure here breaks the audit trail, so it is logged at
// error level; the delivery itself is never retried because of it.
func (r *Recorder) Record(d *models.WebhookDelivery) error {
	if err := r.deliveries.Insert(d); err != nil {
		log.Error().Err(err).
			Str("delivery_id", d.ID).
			Str("webhook_id", d.WebhookID).
			Msg("failed to append delivery record, audit trail incomplete")
		return err
	}

	// Test traffic is flagged in the log but kept out of the rollup and
	// the webhook's cumulative counters.
	if d.IsTest {
		return nil
	}

	mu := r.lockFor(d.WebhookID)
	mu.Lock()
	defer mu.Unlock()

	stats, err := r.stats.Get(d.WebhookID)
	if err != nil {
		log.Error().Err(err).Str("webhook_id", d.WebhookID).Msg("failed to load webhook stats")
		return err
	}

	r.apply(stats, d)

	if err := r.stats.Upsert(stats); err != nil {
		log.Error().Err(err).Str("webhook_id", d.WebhookID).Msg("failed to persist webhook stats")
		return err
	}

	if err := r.webhooks.RecordOutcome(d.WebhookID, d.Success, d.CreatedAt); err != nil {
		log.Error().Err(err).Str("webhook_id", d.WebhookID).Msg("failed to update webhook counters")
		return err
	}

	return nil
}

// Stats returns the current rollup for a webhook.
func (r *Recorder) Stats(webhookID string) (*models.WebhookStats, error) {
	return r.stats.Get(webhookID)
}

func (r *Recorder) apply(stats *models.WebhookStats, d *models.WebhookDelivery) {
	stats.Total++
	if d.Success {
		stats.Successful++
	} else {
		stats.Failed++
	}
	stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)

	// Running mean, no rescans.
	stats.AvgResponseMs += (float64(d.ResponseTimeMs) - stats.AvgResponseMs) / float64(stats.Total)

	at := d.CreatedAt
	stats.LastDeliveryAt = &at

	if stats.ByDay == nil {
		stats.ByDay = map[string]int64{}
	}
	day := time.Unix(d.CreatedAt, 0).UTC().Format(dayBucketFormat)
	stats.ByDay[day]++
	r.pruneDays(stats, d.CreatedAt)

	if stats.ByEvent == nil {
		stats.ByEvent = map[string]int64{}
	}
	stats.ByEvent[d.Event]++

	stats.Recent = append(stats.Recent, models.RecentDelivery{
		ID:         d.ID,
		Event:      d.Event,
		Success:    d.Success,
		StatusCode: d.StatusCode,
		At:         d.CreatedAt,
	})
	if len(stats.Recent) > r.recentCap {
		stats.Recent = stats.Recent[len(stats.Recent)-r.recentCap:]
	}

	stats.UpdatedAt = time.Now().Unix()
}

func (r *Recorder) pruneDays(stats *models.WebhookStats, now int64) {
	cutoff := time.Unix(now, 0).UTC().AddDate(0, 0, -r.dayRetention).Format(dayBucketFormat)
	for day := range stats.ByDay {
		if day < cutoff {
			delete(stats.ByDay, day)
		}
	}
}

func (r *Recorder) lockFor(webhookID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(webhookID))
	return &r.locks[h.Sum32()%uint32(len(r.locks))]
}
