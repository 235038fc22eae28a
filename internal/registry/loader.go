// Package registry loads the set of known peer servers from disk and caches it.
//
// Every server is identified by a bootstrap certificate, "<name>.crt", in the
// servers directory. An optional "<name>.json" next to it overrides the defaults
// for the server's link block, and the live certificate last accepted for the
// server is read from "<name>.crt" in a separate data directory.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/authorizer-tech/link-registry/internal/certs"
	"github.com/authorizer-tech/link-registry/internal/store"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a snapshot is served from cache after its build started.
const DefaultTTL = 30 * time.Second

// serverName matches the names a server may be published under. A name ends up
// verbatim in link blocks, so anything else would break the generated syntax.
var serverName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// MetadataParseError is returned when a server's metadata file exists but does not
// hold a valid metadata object.
type MetadataParseError struct {
	Path string
	Err  error
}

func (e *MetadataParseError) Error() string {
	return fmt.Sprintf("unable to parse JSON from '%s': %v", e.Path, e.Err)
}

// Unwrap returns the underlying decoding error.
func (e *MetadataParseError) Unwrap() error { return e.Err }

// Cause returns the underlying decoding error.
func (e *MetadataParseError) Cause() error { return e.Err }

// metadata is the optional per-server JSON object. Absent keys keep their defaults.
type metadata struct {
	Autoconnect *bool   `json:"autoconnect"`
	Hostname    *string `json:"hostname"`
	Port        *int    `json:"port"`
}

// Loader builds registry snapshots and caches the most recent one.
//
// A snapshot is served from cache until DefaultTTL (or the TTL set with WithTTL)
// has passed since its build started, or until Invalidate is called. Loader is
// safe for concurrent use; concurrent cache misses share a single build.
type Loader struct {
	servers *store.Dir
	live    *store.Dir
	ttl     time.Duration
	now     func() time.Time

	group singleflight.Group

	mu         sync.Mutex
	generation uint64
	snapshot   *Snapshot
	deadline   time.Time
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithTTL sets how long a snapshot stays fresh.
func WithTTL(ttl time.Duration) LoaderOption {
	return func(l *Loader) {
		l.ttl = ttl
	}
}

// WithClock sets the function the Loader reads the current time from.
func WithClock(now func() time.Time) LoaderOption {
	return func(l *Loader) {
		l.now = now
	}
}

// NewLoader returns a Loader which reads bootstrap certificates and metadata from
// servers and live certificates from live.
func NewLoader(servers, live *store.Dir, opts ...LoaderOption) *Loader {

	l := &Loader{
		servers: servers,
		live:    live,
		ttl:     DefaultTTL,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// GetSnapshot returns the cached snapshot if it is still fresh, or builds a new one.
// If forceRefresh is true a new snapshot is always built.
//
// A failed build is never cached; the error is returned to every caller that was
// waiting on the build.
func (l *Loader) GetSnapshot(ctx context.Context, forceRefresh bool) (*Snapshot, error) {

	l.mu.Lock()
	if forceRefresh {
		l.invalidateLocked()
	}

	if l.snapshot != nil && l.now().Before(l.deadline) {
		snapshot := l.snapshot
		l.mu.Unlock()
		return snapshot, nil
	}
	generation := l.generation
	l.mu.Unlock()

	// The build is shared by every caller of this generation, so it must not be
	// tied to the context of whichever caller happened to start it.
	ch := l.group.DoChan(strconv.FormatUint(generation, 10), func() (interface{}, error) {

		start := l.now()

		snapshot, err := l.build(context.Background(), start)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		if l.generation == generation {
			l.snapshot = snapshot
			l.deadline = start.Add(l.ttl)
		}
		l.mu.Unlock()

		log.WithFields(log.Fields{
			"servers":  snapshot.Len(),
			"duration": l.now().Sub(start),
		}).Debug("Built registry snapshot")

		return snapshot, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate discards the cached snapshot. A GetSnapshot call made after
// Invalidate returns never returns a snapshot whose build started before it.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.invalidateLocked()
}

func (l *Loader) invalidateLocked() {
	l.generation++
	l.snapshot = nil
	l.deadline = time.Time{}
}

func (l *Loader) build(ctx context.Context, start time.Time) (*Snapshot, error) {

	names, err := l.servers.List(ctx, store.CertificateExt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list bootstrap certificates")
	}

	records := make([]ServerRecord, 0, len(names))
	for _, name := range names {
		if !serverName.MatchString(name) {
			log.WithField("path", l.servers.FilePath(name, store.CertificateExt)).
				Warn("Skipping bootstrap certificate, its name is not a valid server name")
			continue
		}

		record, err := l.loadServer(ctx, name)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return NewSnapshot(records, start), nil
}

func (l *Loader) loadServer(ctx context.Context, name string) (ServerRecord, error) {

	bootstrap, err := l.servers.Read(ctx, name, store.CertificateExt)
	if err != nil {
		return ServerRecord{}, errors.Wrapf(err, "failed to load bootstrap certificate for server '%s'", name)
	}

	key, err := certs.KeyFromPEM(string(bootstrap))
	if err != nil {
		return ServerRecord{}, errors.Wrapf(err, "invalid bootstrap certificate '%s'", l.servers.FilePath(name, store.CertificateExt))
	}

	meta, err := l.loadMetadata(ctx, name)
	if err != nil {
		return ServerRecord{}, err
	}

	record := ServerRecord{
		Name:                name,
		Hostname:            name,
		Port:                DefaultPort,
		Autoconnect:         true,
		BootstrapCertKey:    key,
		LiveCertFingerprint: l.liveFingerprint(ctx, name),
	}

	if meta.Autoconnect != nil {
		record.Autoconnect = *meta.Autoconnect
	}
	if meta.Hostname != nil {
		record.Hostname = *meta.Hostname
	}
	if meta.Port != nil {
		record.Port = *meta.Port
	}

	return record, nil
}

// loadMetadata reads the optional metadata of the named server. A missing file
// yields the zero metadata; a file that can't be read or decoded is an error.
func (l *Loader) loadMetadata(ctx context.Context, name string) (metadata, error) {

	var meta metadata

	data, found, err := l.readOptional(ctx, l.servers, name, store.MetadataExt)
	if err != nil || !found {
		return meta, err
	}

	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, &MetadataParseError{
			Path: l.servers.FilePath(name, store.MetadataExt),
			Err:  err,
		}
	}

	return meta, nil
}

// liveFingerprint returns the fingerprint of the live certificate of the named
// server. Any failure to read or decode it means the server has no live
// certificate.
func (l *Loader) liveFingerprint(ctx context.Context, name string) string {

	logger := log.WithFields(log.Fields{
		"server": name,
		"path":   l.live.FilePath(name, store.CertificateExt),
	})

	data, found, err := l.readOptional(ctx, l.live, name, store.CertificateExt)
	if err != nil {
		logger.WithError(err).Warn("Failed to read live certificate, treating it as absent")
		return ""
	}
	if !found {
		return ""
	}

	fingerprint, err := certs.FingerprintFromPEM(string(data))
	if err != nil {
		logger.WithError(err).Warn("Ignoring malformed live certificate")
		return ""
	}

	return fingerprint
}

// readOptional reads a file which may legitimately be absent. Absence is not an
// error; it is reported by found being false.
func (l *Loader) readOptional(ctx context.Context, dir *store.Dir, name, ext string) (data []byte, found bool, err error) {

	data, err = dir.Read(ctx, name, ext)
	if err != nil {
		if store.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return data, true, nil
}
