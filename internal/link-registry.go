package linkregistry

//go:generate mockgen -self_package github.com/authorizer-tech/link-registry/internal -destination=./mock_registry_test.go -package linkregistry . Registry,CertificateStore,UpdateLog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/authorizer-tech/link-registry/internal/certs"
	"github.com/authorizer-tech/link-registry/internal/generator"
	"github.com/authorizer-tech/link-registry/internal/registry"
)

var (
	// ErrBadRequest is returned when a request is missing a required input.
	ErrBadRequest = errors.New("bad request")

	// ErrUnauthorized is returned when a presented certificate doesn't match the
	// bootstrap certificate of any known server.
	ErrUnauthorized = errors.New("not authorized")
)

// Registry provides snapshots of the servers known to the link registry.
type Registry interface {

	// GetSnapshot returns the current snapshot, building a new one if the cached
	// snapshot is stale or forceRefresh is true.
	GetSnapshot(ctx context.Context, forceRefresh bool) (*registry.Snapshot, error)

	// Invalidate discards any cached snapshot.
	Invalidate()
}

// CertificateStore persists the live certificates of servers.
type CertificateStore interface {

	// PersistCertificate atomically replaces the live certificate of the named server.
	PersistCertificate(ctx context.Context, name string, pemText []byte) error
}

// LinkRegistry publishes link configuration for the known servers and accepts
// certificate updates from them.
type LinkRegistry struct {
	registry Registry
	store    CertificateStore
	updates  UpdateLog
	now      func() time.Time
}

// LinkRegistryOption configures a LinkRegistry.
type LinkRegistryOption func(*LinkRegistry)

// WithRegistry sets the LinkRegistry's Registry.
func WithRegistry(r Registry) LinkRegistryOption {
	return func(l *LinkRegistry) {
		l.registry = r
	}
}

// WithCertificateStore sets the LinkRegistry's CertificateStore.
func WithCertificateStore(s CertificateStore) LinkRegistryOption {
	return func(l *LinkRegistry) {
		l.store = s
	}
}

// WithUpdateLog sets the UpdateLog that accepted certificate updates are recorded in.
func WithUpdateLog(u UpdateLog) LinkRegistryOption {
	return func(l *LinkRegistry) {
		l.updates = u
	}
}

// WithClock sets the function used to timestamp certificate updates.
func WithClock(now func() time.Time) LinkRegistryOption {
	return func(l *LinkRegistry) {
		l.now = now
	}
}

// NewLinkRegistry constructs a new LinkRegistry with the options provided. A
// Registry and a CertificateStore are required.
func NewLinkRegistry(opts ...LinkRegistryOption) (*LinkRegistry, error) {

	l := LinkRegistry{
		now: time.Now,
	}

	for _, opt := range opts {
		opt(&l)
	}

	if l.registry == nil {
		return nil, fmt.Errorf("a Registry must be provided")
	}

	if l.store == nil {
		return nil, fmt.Errorf("a CertificateStore must be provided")
	}

	return &l, nil
}

// Publication is the configuration of every known server in one dialect.
type Publication struct {
	Dialect  generator.Dialect
	Snapshot *registry.Snapshot
}

// ETag returns an entity tag identifying the rendered output of the publication.
func (p Publication) ETag() string {
	return fmt.Sprintf(`"%s-%016x"`, p.Dialect.Name, p.Snapshot.Checksum())
}

// Render writes every server of the snapshot, ordered by name, to sink.
func (p Publication) Render(sink generator.Sink) error {

	r, err := p.Dialect.NewRenderer(sink)
	if err != nil {
		return err
	}

	for _, server := range p.Snapshot.Servers() {
		if err := r.Write(server); err != nil {
			return errors.Wrapf(err, "failed to render server '%s'", server.Name)
		}
	}

	return r.Finish()
}

// Publication resolves the named dialect against the current snapshot. Nothing is
// rendered, so a failure here leaves any output untouched.
func (l *LinkRegistry) Publication(ctx context.Context, dialect string) (Publication, error) {

	snapshot, err := l.registry.GetSnapshot(ctx, false)
	if err != nil {
		return Publication{}, err
	}

	d, err := generator.Lookup(dialect)
	if err != nil {
		return Publication{}, err
	}

	return Publication{Dialect: d, Snapshot: snapshot}, nil
}

// PublishConfig renders the configuration of every known server in the named
// dialect to sink. An empty dialect selects generator.DefaultDialect.
func (l *LinkRegistry) PublishConfig(ctx context.Context, dialect string, sink generator.Sink) error {

	p, err := l.Publication(ctx, dialect)
	if err != nil {
		return err
	}

	return p.Render(sink)
}

// UpdateCertificate replaces the live certificate of the server whose bootstrap
// certificate is clientCertPEM with newCertPEM.
//
// ErrBadRequest is returned if either certificate is missing and ErrUnauthorized if
// clientCertPEM isn't the bootstrap certificate of any known server, in which case
// nothing is written. On success the registry cache is invalidated so the next
// snapshot reflects the new certificate.
func (l *LinkRegistry) UpdateCertificate(ctx context.Context, clientCertPEM, newCertPEM string) (CertificateUpdate, error) {

	if clientCertPEM == "" {
		return CertificateUpdate{}, errors.Wrap(ErrBadRequest, "no client certificate was presented, either the client or the server is misconfigured")
	}

	snapshot, err := l.registry.GetSnapshot(ctx, false)
	if err != nil {
		return CertificateUpdate{}, err
	}

	key, err := certs.KeyFromPEM(clientCertPEM)
	if err != nil {
		return CertificateUpdate{}, errors.Wrapf(ErrBadRequest, "invalid client certificate: %v", err)
	}

	server, ok := snapshot.ServerByCertKey(key)
	if !ok {
		return CertificateUpdate{}, ErrUnauthorized
	}

	if newCertPEM == "" {
		return CertificateUpdate{}, errors.Wrap(ErrBadRequest, "required parameter 'cert' missing")
	}

	fingerprint, err := certs.FingerprintFromPEM(newCertPEM)
	if err != nil {
		return CertificateUpdate{}, errors.Wrapf(ErrBadRequest, "invalid parameter 'cert': %v", err)
	}

	if err := l.store.PersistCertificate(ctx, server.Name, []byte(newCertPEM)); err != nil {
		return CertificateUpdate{}, errors.Wrapf(err, "failed to persist the certificate of server '%s'", server.Name)
	}

	l.registry.Invalidate()

	update := CertificateUpdate{
		ID:          uuid.New(),
		Server:      server.Name,
		Fingerprint: fingerprint,
		Timestamp:   l.now(),
	}

	logger := log.WithFields(log.Fields{
		"server":      update.Server,
		"fingerprint": update.Fingerprint,
	})
	logger.Info("Updated live certificate")

	// The certificate is already in place at this point, failing to record the
	// update must not fail the request.
	if l.updates != nil {
		if err := l.updates.Append(ctx, update); err != nil {
			logger.WithError(err).Error("Failed to record the certificate update")
		}
	}

	return update, nil
}

// ListUpdates returns at most limit of the most recent certificate updates of the
// named server, newest first.
func (l *LinkRegistry) ListUpdates(ctx context.Context, server string, limit int) ([]CertificateUpdate, error) {

	if l.updates == nil {
		return []CertificateUpdate{}, nil
	}

	return l.updates.List(ctx, server, limit)
}
