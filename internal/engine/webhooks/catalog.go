package webhooks

// Event categories.
const (
	CategoryAuthentication = "authentication"
	CategoryUserManagement = "user-management"
	CategorySecurity       = "security"
	CategoryAudit          = "audit"
	CategoryOrganization   = "organization"
	CategorySystem         = "system"
)

// CatalogEvent describes one event the engine can notify on. The catalog
// is static: registry validation and the discovery endpoint both read it.
type CatalogEvent struct {
	Name        string                 `json:"name"`
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
	Sample      map[string]interface{} `json:"sample"`
	Enabled     bool                   `json:"enabled"`
}

var catalog = []CatalogEvent{
	{
		Name:        "user.login",
		Category:    CategoryAuthentication,
		Description: "A user signed in",
		Sample:      map[string]interface{}{"user_id": "usr_123", "ip": "203.0.113.7", "method": "password"},
		Enabled:     true,
	},
	{
		Name:        "user.logout",
		Category:    CategoryAuthentication,
		Description: "A user signed out",
		Sample:      map[string]interface{}{"user_id": "usr_123"},
		Enabled:     true,
	},
	{
		Name:        "session.created",
		Category:    CategoryAuthentication,
		Description: "A new session was established",
		Sample:      map[string]interface{}{"session_id": "sess_456", "user_id": "usr_123"},
		Enabled:     true,
	},
	{
		Name:        "session.expired",
		Category:    CategoryAuthentication,
		Description: "A session reached its expiry",
		Sample:      map[string]interface{}{"session_id": "sess_456", "user_id": "usr_123"},
		Enabled:     true,
	},
	{
		Name:        "user.created",
		Category:    CategoryUserManagement,
		Description: "A user account was created",
		Sample:      map[string]interface{}{"user_id": "usr_123", "email": "jo@example.com"},
		Enabled:     true,
	},
	{
		Name:        "user.updated",
		Category:    CategoryUserManagement,
		Description: "A user profile was updated",
		Sample:      map[string]interface{}{"user_id": "usr_123", "fields": []interface{}{"email"}},
		Enabled:     true,
	},
	{
		Name:        "user.deleted",
		Category:    CategoryUserManagement,
		Description: "A user account was deleted",
		Sample:      map[string]interface{}{"user_id": "usr_123"},
		Enabled:     true,
	},
	{
		Name:        "role.assigned",
		Category:    CategoryUserManagement,
		Description: "A role was granted to a user",
		Sample:      map[string]interface{}{"user_id": "usr_123", "role": "admin"},
		Enabled:     true,
	},
	{
		Name:        "role.revoked",
		Category:    CategoryUserManagement,
		Description: "A role was removed from a user",
		Sample:      map[string]interface{}{"user_id": "usr_123", "role": "admin"},
		Enabled:     true,
	},
	{
		Name:        "security.password_changed",
		Category:    CategorySecurity,
		Description: "A user changed their password",
		Sample:      map[string]interface{}{"user_id": "usr_123"},
		Enabled:     true,
	},
	{
		Name:        "security.mfa_enabled",
		Category:    CategorySecurity,
		Description: "Multi-factor authentication was enabled",
		Sample:      map[string]interface{}{"user_id": "usr_123", "factor": "totp"},
		Enabled:     true,
	},
	{
		Name:        "security.alert",
		Category:    CategorySecurity,
		Description: "A suspicious activity alert was raised",
		Sample:      map[string]interface{}{"user_id": "usr_123", "reason": "new_device", "ip": "203.0.113.7"},
		Enabled:     true,
	},
	{
		Name:        "audit.created",
		Category:    CategoryAudit,
		Description: "An audit log entry was written",
		Sample:      map[string]interface{}{"audit_id": "audit_789", "action": "webhook.update"},
		Enabled:     true,
	},
	{
		Name:        "organization.created",
		Category:    CategoryOrganization,
		Description: "An organization was created",
		Sample:      map[string]interface{}{"organization_id": "org_321", "name": "Acme"},
		Enabled:     true,
	},
	{
		Name:        "organization.member_added",
		Category:    CategoryOrganization,
		Description: "A member joined an organization",
		Sample:      map[string]interface{}{"organization_id": "org_321", "user_id": "usr_123"},
		Enabled:     true,
	},
	{
		Name:        "system.maintenance",
		Category:    CategorySystem,
		Description: "A maintenance window announcement",
		Sample:      map[string]interface{}{"starts_at": 1700000000, "duration_minutes": 30},
		Enabled:     true,
	},
}

// Catalog returns a copy of the event catalog.
func Catalog() []CatalogEvent {
	out := make([]CatalogEvent, len(catalog))
	copy(out, catalog)
	return out
}

// LookupEvent finds a catalog entry by name.
func LookupEvent(name string) (CatalogEvent, bool) {
	for _, e := range catalog {
		if e.Name == name {
			return e, true
		}
	}
	return CatalogEvent{}, false
}

// ValidateEvents checks that every name is a known, enabled catalog event.
func ValidateEvents(names []string) error {
	if len(names) == 0 {
		return configErr("events", "at least one event is required")
	}
	for _, name := range names {
		e, ok := LookupEvent(name)
		if !ok {
			return configErr("events", "unknown event "+name)
		}
		if !e.Enabled {
			return configErr("events", "event "+name+" is disabled")
		}
	}
	return nil
}
