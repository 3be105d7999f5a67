package mq

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kiln-run/runner/internal/retry"
)

func TestDefaultURL(t *testing.T) {
	if !strings.HasPrefix(DefaultURL(), "amqp://") {
		t.Fatalf("expected an amqp:// URL, got %q", DefaultURL())
	}
}

// NewConnectionWithPolicy fails fast on an unreachable broker rather
// than blocking on the reconnect loop, so dial errors surface to the
// caller instead of being swallowed.
func TestNewConnectionWithPolicy_DialFailureReturnsError(t *testing.T) {
	policy := retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2}

	_, err := NewConnectionWithPolicy("amqp://127.0.0.1:1/", slog.Default(), policy)
	if err == nil {
		t.Fatal("expected a dial error against an unreachable broker")
	}
}
