package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"authhooks/internal/platform/models"
	"authhooks/internal/platform/repositories"
)

// Tester is the synchronous single-shot variant of the worker, used for
// "send test event" interactions. It bypasses the active-webhook filter
// and never schedules retries; the attempt is logged as flagged test
// traffic so it stays out of the stats rollup.
type Tester struct {
	webhooks *repositories.WebhookRepository
	recorder *Recorder
	sender   *Sender
}

func NewTester(webhooks *repositories.WebhookRepository, recorder *Recorder, sender *Sender) *Tester {
	return &Tester{webhooks: webhooks, recorder: recorder, sender: sender}
}

// TestResult is the full outcome, returned as data even on failure.
type TestResult struct {
	Success        bool              `json:"success"`
	StatusCode     int               `json:"status_code,omitempty"`
	Response       string            `json:"response,omitempty"`
	ResponseTimeMs int64             `json:"response_time_ms"`
	Headers        map[string]string `json:"headers,omitempty"`
	Error          string            `json:"error,omitempty"`
	DeliveryID     string            `json:"delivery_id"`
}

// SendTest performs exactly one signed delivery and waits for it. When no
// custom payload is given, the catalog's sample payload for the event is
// used. Only infrastructure-level faults (unknown webhook, unknown event)
// are returned as errors; a failing receiver is reported in the result.
func (t *Tester) SendTest(ctx context.Context, webhookID, event string, customPayload json.RawMessage) (*TestResult, error) {
	webhook, err := t.webhooks.GetByID(webhookID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrWebhookNotFound
		}
		return nil, err
	}

	var data interface{}
	if len(customPayload) > 0 {
		data = customPayload
	} else {
		catalogEvent, ok := LookupEvent(event)
		if !ok {
			return nil, ErrUnknownEvent
		}
		data = catalogEvent.Sample
	}

	envelope := &models.WebhookEvent{
		ID:        "evt_" + uuid.New().String(),
		Event:     event,
		Timestamp: time.Now().Unix(),
		Test:      true,
		Data:      data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}

	deliveryID := "whd_" + uuid.New().String()
	result := t.sender.Send(ctx, webhook, deliveryID, envelope.ID, event, payload)

	now := time.Now().Unix()
	delivery := &models.WebhookDelivery{
		ID:              deliveryID,
		WebhookID:       webhook.ID,
		EventID:         envelope.ID,
		Event:           event,
		Payload:         payload,
		Attempt:         1,
		Success:         result.Class == OutcomeSuccess,
		StatusCode:      result.StatusCode,
		ResponseBody:    result.Body,
		ResponseTimeMs:  result.Duration.Milliseconds(),
		IsTest:          true,
		RequestHeaders:  result.RequestHeaders,
		ResponseHeaders: result.ResponseHeaders,
		CreatedAt:       now,
	}
	if delivery.Success {
		delivery.Status = models.DeliveryStatusDelivered
		delivery.DeliveredAt = &now
	} else {
		delivery.Status = models.DeliveryStatusFailed
		if result.Err != nil {
			delivery.Error = result.Err.Error()
		} else {
			delivery.Error = fmt.Sprintf("HTTP %d", result.StatusCode)
		}
	}
	t.recorder.Record(delivery)

	return &TestResult{
		Success:        delivery.Success,
		StatusCode:     delivery.StatusCode,
		Response:       delivery.ResponseBody,
		ResponseTimeMs: delivery.ResponseTimeMs,
		Headers:        delivery.ResponseHeaders,
		Error:          delivery.Error,
		DeliveryID:     deliveryID,
	}, nil
}
