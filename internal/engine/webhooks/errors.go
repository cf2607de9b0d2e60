package webhooks

import (
	"errors"
	"fmt"
)

var (
	// ErrWebhookNotFound covers lookups for ids that never existed or were
	// hard-deleted.
	ErrWebhookNotFound = errors.New("webhook not found")

	// ErrUnknownEvent is returned for event names missing from the catalog.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrEmptySecret is the signer's precondition failure.
	ErrEmptySecret = errors.New("signing secret must not be empty")

	// ErrVersionConflict surfaces a lost optimistic-concurrency race on a
	// registry update.
	ErrVersionConflict = errors.New("webhook was modified concurrently")
)

// ConfigError rejects an invalid webhook configuration at registry write
// time, before anything reaches the worker pool.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid webhook configuration: %s: %s", e.Field, e.Reason)
}

func configErr(field, reason string) error {
	return &ConfigError{Field: field, Reason: reason}
}
