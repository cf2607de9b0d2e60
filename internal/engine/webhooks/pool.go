package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"authhooks/internal/platform/models"
	"authhooks/internal/platform/repositories"
)

// Task is one pending delivery attempt. The payload snapshot is taken at
// dispatch time, so configuration edits never change what gets sent.
type Task struct {
	WebhookID string
	EventID   string
	Event     string
	Payload   []byte
	Attempt   int
}

// Pool runs a bounded set of delivery workers over an in-memory queue.
// Retries are re-enqueued through timers after the backoff delay.
type Pool struct {
	webhooks *repositories.WebhookRepository
	recorder *Recorder
	sender   *Sender
	policy   Policy

	workers int
	tasks   chan Task
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	running   bool
	timers    map[int64]*time.Timer
	nextTimer int64
}

func NewPool(webhooks *repositories.WebhookRepository, recorder *Recorder, sender *Sender, policy Policy, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 16
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Pool{
		webhooks: webhooks,
		recorder: recorder,
		sender:   sender,
		policy:   policy,
		workers:  workers,
		tasks:    make(chan Task, queueSize),
		stopCh:   make(chan struct{}),
		timers:   map[int64]*time.Timer{},
	}
}

func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true

	log.Info().Int("workers", p.workers).Msg("webhook delivery pool starting")
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop cancels pending retry timers and waits for in-flight attempts to
// finish. Queued tasks that never started are dropped; delivery is
// best-effort across restarts.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	for id, timer := range p.timers {
		timer.Stop()
		delete(p.timers, id)
	}
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	log.Info().Msg("webhook delivery pool stopped")
}

// Submit enqueues a task without blocking. A full queue drops the task,
// which callers are expected to log.
func (p *Pool) Submit(t Task) bool {
	select {
	case <-p.stopCh:
		return false
	case p.tasks <- t:
		return true
	default:
		return false
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case t := <-p.tasks:
			p.run(t)
		}
	}
}

func (p *Pool) run(t Task) {
	webhook, err := p.webhooks.GetByID(t.WebhookID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// The owner removed the target; abandoning here is the one
			// allowed silent drop.
			log.Debug().Str("webhook_id", t.WebhookID).Str("event", t.Event).Msg("webhook gone, abandoning delivery")
			return
		}
		log.Error().Err(err).Str("webhook_id", t.WebhookID).Msg("failed to resolve webhook for delivery")
		return
	}
	if !webhook.IsActive || webhook.DeletedAt != nil {
		log.Debug().Str("webhook_id", t.WebhookID).Str("event", t.Event).Msg("webhook inactive, abandoning delivery")
		return
	}

	deliveryID := "whd_" + uuid.New().String()
	result := p.sender.Send(context.Background(), webhook, deliveryID, t.EventID, t.Event, t.Payload)

	retry, delay := p.policy.Decide(t.Attempt, webhook.MaxRetries, result.Class)
	delivery := buildDelivery(deliveryID, webhook.ID, t, result, retry)
	p.recorder.Record(delivery)

	evt := log.Info()
	if !delivery.Success {
		evt = log.Warn()
	}
	evt.Str("delivery_id", deliveryID).
		Str("webhook_id", webhook.ID).
		Str("event", t.Event).
		Int("attempt", t.Attempt).
		Int("status_code", result.StatusCode).
		Str("status", delivery.Status).
		Dur("response_time", result.Duration).
		Msg("webhook delivery attempt")

	if retry {
		next := t
		next.Attempt++
		p.schedule(next, delay)
	}
}

func (p *Pool) schedule(t Task, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	id := p.nextTimer
	p.nextTimer++
	p.timers[id] = time.AfterFunc(delay, func() {
		p.mu.Lock()
		delete(p.timers, id)
		p.mu.Unlock()
		if !p.Submit(t) {
			log.Warn().Str("webhook_id", t.WebhookID).Str("event", t.Event).Int("attempt", t.Attempt).Msg("retry dropped, queue unavailable")
		}
	})
}

func buildDelivery(deliveryID, webhookID string, t Task, result SendResult, willRetry bool) *models.WebhookDelivery {
	now := time.Now().Unix()
	d := &models.WebhookDelivery{
		ID:              deliveryID,
		WebhookID:       webhookID,
		EventID:         t.EventID,
		Event:           t.Event,
		Payload:         t.Payload,
		Attempt:         t.Attempt,
		Success:         result.Class == OutcomeSuccess,
		StatusCode:      result.StatusCode,
		ResponseBody:    result.Body,
		ResponseTimeMs:  result.Duration.Milliseconds(),
		RequestHeaders:  result.RequestHeaders,
		ResponseHeaders: result.ResponseHeaders,
		CreatedAt:       now,
	}

	switch result.Class {
	case OutcomeSuccess:
		d.Status = models.DeliveryStatusDelivered
		d.DeliveredAt = &now
	case OutcomeTerminal:
		d.Status = models.DeliveryStatusFailed
	default:
		if willRetry {
			d.Status = models.DeliveryStatusRetrying
		} else {
			d.Status = models.DeliveryStatusExhausted
		}
	}

	if !d.Success {
		if result.Err != nil {
			d.Error = result.Err.Error()
		} else {
			d.Error = fmt.Sprintf("HTTP %d", result.StatusCode)
		}
	}

	return d
}
