package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apiContext "authhooks/internal/api/context"
	"authhooks/internal/platform/auth"
)

// AuditLog records who changed a webhook configuration and how. Delivery
// attempts are not audited here; they live in the delivery log.
type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    int64                  `json:"created_at"`
}

// Notifier fans an audit entry out to subscribers. Satisfied by the webhook
// dispatcher; kept as an interface to avoid a cycle with the engine package.
type Notifier interface {
	Dispatch(event string, data interface{}) error
}

type Logger struct {
	db       *sql.DB
	notifier Notifier
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// SetNotifier enables audit.created fan-out. Safe to leave unset.
func (l *Logger) SetNotifier(n Notifier) {
	l.notifier = n
}

func (l *Logger) Log(ctx context.Context, action, resourceID string, metadata map[string]interface{}) {
	var userID string
	if claims, ok := ctx.Value(apiContext.Claims).(*auth.Claims); ok {
		userID = claims.UserID
	}

	metaJSON, _ := json.Marshal(metadata)

	entry := &AuditLog{
		ID:           "audit_" + uuid.New().String(),
		UserID:       userID,
		Action:       action,
		ResourceType: "webhook",
		ResourceID:   resourceID,
		Metadata:     metadata,
		CreatedAt:    time.Now().Unix(),
	}

	go func() {
		query := `
			INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		if _, err := l.db.Exec(query, entry.ID, entry.UserID, entry.Action, entry.ResourceType,
			entry.ResourceID, string(metaJSON), entry.CreatedAt); err != nil {
			log.Error().Err(err).Str("action", action).Str("resource_id", resourceID).Msg("failed to write audit log")
		}

		if l.notifier != nil {
			if err := l.notifier.Dispatch("audit.created", entry); err != nil {
				log.Warn().Err(err).Str("action", action).Msg("audit event fan-out failed")
			}
		}
	}()
}
