package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	apiContext "authhooks/internal/api/context"
	"authhooks/internal/engine/webhooks"
	"authhooks/internal/pkg/errors"
	"authhooks/internal/platform/repositories"
)

type WebhookHandler struct {
	service    *webhooks.Service
	tester     *webhooks.Tester
	recorder   *webhooks.Recorder
	deliveries *repositories.DeliveryRepository
}

func NewWebhookHandler(service *webhooks.Service, tester *webhooks.Tester, recorder *webhooks.Recorder, deliveries *repositories.DeliveryRepository) *WebhookHandler {
	return &WebhookHandler{
		service:    service,
		tester:     tester,
		recorder:   recorder,
		deliveries: deliveries,
	}
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req webhooks.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	webhook, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The plaintext secret is only returned here, on creation.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(webhook)
}

func (h *WebhookHandler) CreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := param(r, "template_id")

	var req webhooks.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	webhook, err := h.service.CreateFromTemplate(r.Context(), templateID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(webhook)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List()
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"webhooks": list,
		"total":    len(list),
	})
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	webhook, err := h.service.Get(param(r, "webhook_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(webhook)
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req webhooks.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	webhook, err := h.service.Update(r.Context(), param(r, "webhook_id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(webhook)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	hard := r.URL.Query().Get("hard") == "true"

	if err := h.service.Delete(r.Context(), param(r, "webhook_id"), hard); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *WebhookHandler) RegenerateSecret(w http.ResponseWriter, r *http.Request) {
	secret, err := h.service.RegenerateSecret(r.Context(), param(r, "webhook_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"secret": secret})
}

func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Event == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "event is required", nil)
		return
	}

	result, err := h.tester.SendTest(r.Context(), param(r, "webhook_id"), req.Event, req.Payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// A failed delivery is still a successful test call; Success carries the outcome.
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *WebhookHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	id := param(r, "webhook_id")

	// Return 404 rather than an empty page for unknown webhooks.
	if _, err := h.service.Get(id); err != nil {
		writeServiceError(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}

	deliveries, total, err := h.deliveries.ListByWebhook(id, page, limit)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list deliveries", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"deliveries":   deliveries,
		"page":         page,
		"limit":        limit,
		"total":        total,
		"has_next":     int64(page*limit) < total,
		"has_previous": page > 1,
	})
}

func (h *WebhookHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	id := param(r, "webhook_id")

	if _, err := h.service.Get(id); err != nil {
		writeServiceError(w, err)
		return
	}

	stats, err := h.recorder.Stats(id)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load stats", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (h *WebhookHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events := webhooks.Catalog()

	if category := r.URL.Query().Get("category"); category != "" {
		filtered := events[:0:0]
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"events": events,
		"total":  len(events),
	})
}

func (h *WebhookHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"templates": webhooks.Templates(),
	})
}

func param(r *http.Request, name string) string {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	return params.ByName(name)
}

func writeServiceError(w http.ResponseWriter, err error) {
	var cfgErr *webhooks.ConfigError

	switch {
	case stderrors.Is(err, webhooks.ErrWebhookNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Webhook not found", nil)
	case stderrors.Is(err, webhooks.ErrUnknownEvent):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
	case stderrors.Is(err, webhooks.ErrVersionConflict):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Webhook was modified concurrently, retry with fresh state", nil)
	case stderrors.As(err, &cfgErr):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, cfgErr.Error(), map[string]string{"field": cfgErr.Field})
	default:
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal server error", nil)
	}
}
