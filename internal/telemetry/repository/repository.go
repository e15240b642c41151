package repository

import (
	"context"

	"authsession/internal/telemetry/domain"
)

// Repository defines persistence for session events.
type Repository interface {
	Save(ctx context.Context, e *domain.Event) error
	ListByDevice(ctx context.Context, deviceID string, limit int32) ([]*domain.Event, error)
}
