package webhooks

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"
)

// OutcomeClass classifies a delivery outcome for the retry decision.
type OutcomeClass int

const (
	// OutcomeSuccess is any 2xx response.
	OutcomeSuccess OutcomeClass = iota
	// OutcomeRetryable covers timeouts, connection errors and 5xx responses.
	OutcomeRetryable
	// OutcomeTerminal covers 4xx responses, TLS verification failures, DNS
	// failures and malformed URLs. Never retried.
	OutcomeTerminal
)

func (c OutcomeClass) String() string {
	switch c {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable-failure"
	default:
		return "terminal-failure"
	}
}

// ClassifyStatus classifies an HTTP response code.
func ClassifyStatus(code int) OutcomeClass {
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code >= 500:
		return OutcomeRetryable
	default:
		return OutcomeTerminal
	}
}

// ClassifyError classifies a transport-level failure. Timeouts and
// connection errors are worth retrying; DNS and certificate problems are
// configuration issues that another attempt will not fix.
func ClassifyError(err error) OutcomeClass {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return OutcomeTerminal
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return OutcomeTerminal
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeRetryable
	}
	// Connection refused, reset, broken pipe and the like.
	return OutcomeRetryable
}

// Policy decides whether to retry a delivery and how long to back off.
// The curve is deterministic exponential doubling from Base, capped at
// Cap, so the delay is strictly non-decreasing in the attempt number.
type Policy struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultPolicy backs off 30s, 1m, 2m, ... capped at one hour.
func DefaultPolicy() Policy {
	return Policy{Base: 30 * time.Second, Cap: time.Hour}
}

// Decide is pure: given the attempt that just completed (1-based), the
// webhook's retry budget and the outcome class, it returns whether to
// schedule another attempt and after what delay. Success and terminal
// failures never retry; a retryable failure retries while
// attempt <= maxRetries.
func (p Policy) Decide(attempt, maxRetries int, class OutcomeClass) (bool, time.Duration) {
	if class != OutcomeRetryable {
		return false, 0
	}
	if attempt > maxRetries {
		return false, 0
	}
	return true, p.Delay(attempt)
}

// Delay returns Base * 2^(attempt-1), capped at Cap.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.Cap > 0 && d >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}
