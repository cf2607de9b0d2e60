package webhooks

// WebhookTemplate is a pre-filled, inactive configuration used to
// bootstrap a new webhook for a known receiver shape. Templates are not
// executable; CreateFromTemplate turns one into a real webhook.
type WebhookTemplate struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	URL         string                 `json:"url"`
	Method      string                 `json:"method"`
	Headers     map[string]string      `json:"headers,omitempty"`
	Events      []string               `json:"events"`
	Config      map[string]interface{} `json:"config,omitempty"`
}

var templates = []WebhookTemplate{
	{
		ID:          "generic-json",
		Name:        "Generic JSON receiver",
		Description: "Plain JSON POST for custom integrations",
		URL:         "https://example.com/webhooks/authhooks",
		Method:      "POST",
		Events:      []string{"user.created", "user.updated", "user.deleted"},
	},
	{
		ID:          "security-alerts",
		Name:        "Security alert feed",
		Description: "Security and session events for a SIEM intake endpoint",
		URL:         "https://siem.example.com/ingest/webhook",
		Method:      "POST",
		Headers:     map[string]string{"X-Intake-Source": "authhooks"},
		Events:      []string{"security.alert", "security.password_changed", "session.created", "session.expired"},
		Config:      map[string]interface{}{"format": "json", "severity_field": "reason"},
	},
	{
		ID:          "audit-archive",
		Name:        "Audit archive",
		Description: "Streams audit entries to a long-term archive",
		URL:         "https://archive.example.com/hooks/audit",
		Method:      "POST",
		Events:      []string{"audit.created"},
		Config:      map[string]interface{}{"batching": false},
	},
}

// Templates returns a copy of the built-in template list.
func Templates() []WebhookTemplate {
	out := make([]WebhookTemplate, len(templates))
	copy(out, templates)
	return out
}

// LookupTemplate finds a template by id.
func LookupTemplate(id string) (WebhookTemplate, bool) {
	for _, t := range templates {
		if t.ID == id {
			return t, true
		}
	}
	return WebhookTemplate{}, false
}
