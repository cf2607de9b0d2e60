package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"authhooks/internal/platform/audit"
	"authhooks/internal/platform/models"
	"authhooks/internal/platform/repositories"
)

// Receivers may not override these via custom headers; the engine owns them.
var forbiddenHeaders = map[string]bool{
	"authorization":  true,
	"content-type":   true,
	"content-length": true,
	"host":           true,
}

var allowedMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// Service is the webhook registry: CRUD over configurations with the
// invariants enforced at write time, so invalid configs never reach the
// worker pool.
type Service struct {
	repo  *repositories.WebhookRepository
	audit *audit.Logger

	defaultTimeout    int
	defaultMaxRetries int
}

func NewService(repo *repositories.WebhookRepository, auditLogger *audit.Logger, defaultTimeout, defaultMaxRetries int) *Service {
	if defaultTimeout <= 0 {
		defaultTimeout = 30
	}
	if defaultMaxRetries < 0 {
		defaultMaxRetries = 3
	}
	return &Service{
		repo:              repo,
		audit:             auditLogger,
		defaultTimeout:    defaultTimeout,
		defaultMaxRetries: defaultMaxRetries,
	}
}

type CreateInput struct {
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	URL            string            `json:"url"`
	Secret         string            `json:"secret"`
	Events         []string          `json:"events"`
	Headers        map[string]string `json:"headers"`
	Method         string            `json:"method"`
	IsActive       *bool             `json:"is_active"`
	TimeoutSeconds *int              `json:"timeout_seconds"`
	MaxRetries     *int              `json:"max_retries"`
	VerifyTLS      *bool             `json:"verify_tls"`
}

// Create registers a webhook. The returned record includes the secret;
// this is the only read that ever does (besides RegenerateSecret).
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Webhook, error) {
	webhook := &models.Webhook{
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		URL:            in.URL,
		Secret:         in.Secret,
		Events:         in.Events,
		Headers:        in.Headers,
		Method:         in.Method,
		IsActive:       true,
		TimeoutSeconds: s.defaultTimeout,
		MaxRetries:     s.defaultMaxRetries,
		VerifyTLS:      true,
	}
	if in.IsActive != nil {
		webhook.IsActive = *in.IsActive
	}
	if in.TimeoutSeconds != nil {
		webhook.TimeoutSeconds = *in.TimeoutSeconds
	}
	if in.MaxRetries != nil {
		webhook.MaxRetries = *in.MaxRetries
	}
	if in.VerifyTLS != nil {
		webhook.VerifyTLS = *in.VerifyTLS
	}
	if webhook.Method == "" {
		webhook.Method = http.MethodPost
	}
	if webhook.Secret == "" {
		secret, err := generateSecret()
		if err != nil {
			return nil, err
		}
		webhook.Secret = secret
	}

	if err := validateWebhook(webhook); err != nil {
		return nil, err
	}

	if err := s.repo.Create(webhook); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, "webhook.create", webhook.ID, map[string]interface{}{
		"name":   webhook.Name,
		"url":    webhook.URL,
		"events": webhook.Events,
	})

	return webhook, nil
}

// CreateFromTemplate bootstraps a webhook from a built-in template. The
// result starts inactive so the owner can review it before traffic flows.
func (s *Service) CreateFromTemplate(ctx context.Context, templateID string, in CreateInput) (*models.Webhook, error) {
	tpl, ok := LookupTemplate(templateID)
	if !ok {
		return nil, configErr("template", "unknown template "+templateID)
	}

	merged := CreateInput{
		Name:           tpl.Name,
		Description:    tpl.Description,
		URL:            tpl.URL,
		Events:         tpl.Events,
		Headers:        tpl.Headers,
		Method:         tpl.Method,
		Secret:         in.Secret,
		TimeoutSeconds: in.TimeoutSeconds,
		MaxRetries:     in.MaxRetries,
		VerifyTLS:      in.VerifyTLS,
	}
	if in.Name != "" {
		merged.Name = in.Name
	}
	if in.Description != "" {
		merged.Description = in.Description
	}
	if in.URL != "" {
		merged.URL = in.URL
	}
	if len(in.Events) > 0 {
		merged.Events = in.Events
	}
	if in.Headers != nil {
		merged.Headers = in.Headers
	}
	inactive := false
	merged.IsActive = &inactive
	if in.IsActive != nil {
		merged.IsActive = in.IsActive
	}

	return s.Create(ctx, merged)
}

// Get returns a webhook with the secret redacted.
func (s *Service) Get(id string) (*models.Webhook, error) {
	webhook, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return webhook.Redacted(), nil
}

// List returns all non-deleted webhooks, secrets redacted.
func (s *Service) List() ([]*models.Webhook, error) {
	webhooks, err := s.repo.List()
	if err != nil {
		return nil, err
	}
	out := make([]*models.Webhook, len(webhooks))
	for i, w := range webhooks {
		out[i] = w.Redacted()
	}
	return out, nil
}

type UpdateInput struct {
	Name           *string            `json:"name"`
	Description    *string            `json:"description"`
	URL            *string            `json:"url"`
	Events         []string           `json:"events"`
	Headers        *map[string]string `json:"headers"`
	Method         *string            `json:"method"`
	IsActive       *bool              `json:"is_active"`
	TimeoutSeconds *int               `json:"timeout_seconds"`
	MaxRetries     *int               `json:"max_retries"`
	VerifyTLS      *bool              `json:"verify_tls"`
}

// Update applies a partial edit under optimistic concurrency and returns
// the updated record, secret redacted.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*models.Webhook, error) {
	webhook, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	var changed []string
	if in.Name != nil {
		webhook.Name = strings.TrimSpace(*in.Name)
		changed = append(changed, "name")
	}
	if in.Description != nil {
		webhook.Description = *in.Description
		changed = append(changed, "description")
	}
	if in.URL != nil {
		webhook.URL = *in.URL
		changed = append(changed, "url")
	}
	if in.Events != nil {
		webhook.Events = in.Events
		changed = append(changed, "events")
	}
	if in.Headers != nil {
		webhook.Headers = *in.Headers
		changed = append(changed, "headers")
	}
	if in.Method != nil {
		webhook.Method = *in.Method
		changed = append(changed, "method")
	}
	if in.IsActive != nil {
		webhook.IsActive = *in.IsActive
		changed = append(changed, "is_active")
	}
	if in.TimeoutSeconds != nil {
		webhook.TimeoutSeconds = *in.TimeoutSeconds
		changed = append(changed, "timeout_seconds")
	}
	if in.MaxRetries != nil {
		webhook.MaxRetries = *in.MaxRetries
		changed = append(changed, "max_retries")
	}
	if in.VerifyTLS != nil {
		webhook.VerifyTLS = *in.VerifyTLS
		changed = append(changed, "verify_tls")
	}

	if err := validateWebhook(webhook); err != nil {
		return nil, err
	}

	if err := s.repo.Update(webhook); err != nil {
		if errors.Is(err, repositories.ErrVersionConflict) {
			return nil, ErrVersionConflict
		}
		return nil, err
	}

	s.audit.Log(ctx, "webhook.update", webhook.ID, map[string]interface{}{"changed": changed})

	return webhook.Redacted(), nil
}

// Delete removes a webhook, soft by default. Soft deletion keeps the
// delivery history; hard deletion removes the registry row entirely.
func (s *Service) Delete(ctx context.Context, id string, hard bool) error {
	if _, err := s.lookup(id); err != nil {
		return err
	}

	var err error
	if hard {
		err = s.repo.HardDelete(id)
	} else {
		err = s.repo.SoftDelete(id)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrWebhookNotFound
		}
		return err
	}

	s.audit.Log(ctx, "webhook.delete", id, map[string]interface{}{"hard": hard})
	return nil
}

// RegenerateSecret rotates the signing secret and returns the new value.
func (s *Service) RegenerateSecret(ctx context.Context, id string) (string, error) {
	webhook, err := s.lookup(id)
	if err != nil {
		return "", err
	}

	secret, err := generateSecret()
	if err != nil {
		return "", err
	}
	webhook.Secret = secret

	if err := s.repo.Update(webhook); err != nil {
		if errors.Is(err, repositories.ErrVersionConflict) {
			return "", ErrVersionConflict
		}
		return "", err
	}

	s.audit.Log(ctx, "webhook.secret_rotate", id, nil)
	return secret, nil
}

func (s *Service) lookup(id string) (*models.Webhook, error) {
	webhook, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrWebhookNotFound
		}
		return nil, err
	}
	if webhook.DeletedAt != nil {
		return nil, ErrWebhookNotFound
	}
	return webhook, nil
}

func validateWebhook(w *models.Webhook) error {
	if w.Name == "" {
		return configErr("name", "must not be empty")
	}
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return configErr("url", "must be a valid http(s) URL")
	}
	if err := ValidateEvents(w.Events); err != nil {
		return err
	}
	for name := range w.Headers {
		if forbiddenHeaders[strings.ToLower(name)] {
			return configErr("headers", "may not override "+strings.ToLower(name))
		}
	}
	if !allowedMethods[w.Method] {
		return configErr("method", "must be POST, PUT or PATCH")
	}
	if w.TimeoutSeconds <= 0 {
		return configErr("timeout_seconds", "must be greater than zero")
	}
	if w.MaxRetries < 0 {
		return configErr("max_retries", "must not be negative")
	}
	if len(w.Secret) < 16 {
		return configErr("secret", "must be at least 16 characters")
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "whsec_" + base64.RawURLEncoding.EncodeToString(buf), nil
}
