package webhooks

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"

	"authhooks/internal/platform/models"
)

// Signature and metadata headers injected on every delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderEventID   = "X-Webhook-Event-Id"
	HeaderDelivery  = "X-Webhook-Delivery"
)

// Response bodies are stored as an excerpt only.
const maxResponseBody = 1024

// Sender performs one signed HTTP delivery. It is shared by the worker
// pool and the test harness so both produce identical requests.
type Sender struct {
	verifying *http.Transport
	insecure  *http.Transport
}

func NewSender() *Sender {
	verifying := http.DefaultTransport.(*http.Transport).Clone()
	insecure := http.DefaultTransport.(*http.Transport).Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return &Sender{verifying: verifying, insecure: insecure}
}

// SendResult carries everything the recorder needs about one attempt.
type SendResult struct {
	Class           OutcomeClass
	StatusCode      int
	Body            string
	Err             error
	Duration        time.Duration
	RequestHeaders  map[string]string
	ResponseHeaders map[string]string
}

// Send signs the payload and issues the HTTP call with the webhook's
// method, headers, timeout and TLS settings. It never panics or throws;
// every failure mode is folded into the result's outcome class.
func (s *Sender) Send(ctx context.Context, webhook *models.Webhook, deliveryID, eventID string, event string, payload []byte) SendResult {
	signature, err := Sign(webhook.Secret, payload)
	if err != nil {
		return SendResult{Class: OutcomeTerminal, Err: err}
	}

	method := webhook.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, webhook.URL, bytes.NewReader(payload))
	if err != nil {
		// Malformed URL; there is nothing to retry.
		return SendResult{Class: OutcomeTerminal, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "authhooks/webhook-engine")
	for k, v := range webhook.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderEventID, eventID)
	req.Header.Set(HeaderDelivery, deliveryID)

	transport := s.verifying
	if !webhook.VerifyTLS {
		transport = s.insecure
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   time.Duration(webhook.TimeoutSeconds) * time.Second,
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	result := SendResult{
		Duration:       duration,
		RequestHeaders: flattenHeaders(req.Header),
	}

	if err != nil {
		result.Class = ClassifyError(err)
		result.Err = err
		return result
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	result.StatusCode = resp.StatusCode
	result.Body = string(body)
	result.ResponseHeaders = flattenHeaders(resp.Header)
	result.Class = ClassifyStatus(resp.StatusCode)
	return result
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
