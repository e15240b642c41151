// Package producer publishes session events to a message broker (Kafka).
package producer

import (
	"context"

	"authsession/internal/telemetry/domain"
)

// Producer emits session events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call through telemetry.EmitAsync.
	Emit(ctx context.Context, event *domain.Event) error
	// Close flushes and releases resources. Safe to call if already closed.
	Close() error
}
