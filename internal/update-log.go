package linkregistry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CertificateUpdate records a live certificate accepted for a server.
type CertificateUpdate struct {
	ID          uuid.UUID `json:"id"`
	Server      string    `json:"server"`
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
}

// UpdateLog keeps the history of accepted certificate updates.
type UpdateLog interface {

	// Append records the update.
	Append(ctx context.Context, update CertificateUpdate) error

	// List returns at most limit updates of the named server, most recent first.
	List(ctx context.Context, server string, limit int) ([]CertificateUpdate, error)
}
