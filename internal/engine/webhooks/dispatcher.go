package webhooks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"authhooks/internal/platform/models"
	"authhooks/internal/platform/repositories"
)

// Dispatcher fans a domain event out to every active subscribed webhook.
type Dispatcher struct {
	webhooks *repositories.WebhookRepository
	pool     *Pool
}

func NewDispatcher(webhooks *repositories.WebhookRepository, pool *Pool) *Dispatcher {
	return &Dispatcher{webhooks: webhooks, pool: pool}
}

// Dispatch enqueues one first-attempt delivery per matching webhook and
// returns without waiting for any of them. A registry lookup failure is
// returned to the emitter; delivery-time failures never are.
func (d *Dispatcher) Dispatch(event string, data interface{}) error {
	if _, ok := LookupEvent(event); !ok {
		return ErrUnknownEvent
	}

	matched, err := d.webhooks.GetByEvent(event)
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		return nil
	}

	envelope := &models.WebhookEvent{
		ID:        "evt_" + uuid.New().String(),
		Event:     event,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	for _, webhook := range matched {
		task := Task{
			WebhookID: webhook.ID,
			EventID:   envelope.ID,
			Event:     event,
			Payload:   payload,
			Attempt:   1,
		}
		if !d.pool.Submit(task) {
			log.Warn().Str("webhook_id", webhook.ID).Str("event", event).Msg("delivery queue full, dropping task")
		}
	}

	return nil
}
