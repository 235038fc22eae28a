package registry

import (
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultPort is the link port used when a server's metadata doesn't set one.
	DefaultPort = 6697
)

// ServerRecord describes a single peer server known to the registry.
type ServerRecord struct {

	// Name uniquely identifies the server. It is the file stem of the server's
	// bootstrap certificate.
	Name string

	// Hostname is the address other servers connect to. Defaults to Name.
	Hostname string

	// Port is the TLS link port. Defaults to DefaultPort.
	Port int

	// Autoconnect reports whether peers should initiate the link. Defaults to true.
	Autoconnect bool

	// BootstrapCertKey is the canonical key of the server's bootstrap certificate,
	// which authorizes updates to the server's live certificate.
	BootstrapCertKey string

	// LiveCertFingerprint is the fingerprint of the most recently accepted live
	// certificate, or empty if none was ever accepted.
	LiveCertFingerprint string
}

// HasLiveCert reports whether a live certificate is on file for the server.
func (r ServerRecord) HasLiveCert() bool {
	return r.LiveCertFingerprint != ""
}

// Snapshot is an immutable view of the registry at a point in time.
type Snapshot struct {
	byName    map[string]ServerRecord
	byCertKey map[string]ServerRecord
	names     []string
	createdAt time.Time
	checksum  uint64
}

// NewSnapshot returns a snapshot of the provided records. Records are indexed by
// name and by bootstrap certificate key; if two records share a key, the one whose
// name sorts last wins.
func NewSnapshot(records []ServerRecord, createdAt time.Time) *Snapshot {

	s := &Snapshot{
		byName:    make(map[string]ServerRecord, len(records)),
		byCertKey: make(map[string]ServerRecord, len(records)),
		names:     make([]string, 0, len(records)),
		createdAt: createdAt,
	}

	for _, record := range records {
		s.byName[record.Name] = record
		s.names = append(s.names, record.Name)
	}
	sort.Strings(s.names)

	digest := xxhash.New()
	for _, name := range s.names {
		record := s.byName[name]

		if other, ok := s.byCertKey[record.BootstrapCertKey]; ok {
			log.WithFields(log.Fields{
				"server": record.Name,
				"other":  other.Name,
			}).Warn("Servers share a bootstrap certificate, updates with it will apply to the last one")
		}
		s.byCertKey[record.BootstrapCertKey] = record

		for _, field := range []string{
			record.Name,
			record.Hostname,
			strconv.Itoa(record.Port),
			strconv.FormatBool(record.Autoconnect),
			record.BootstrapCertKey,
			record.LiveCertFingerprint,
		} {
			digest.Write([]byte(field))
			digest.Write([]byte{0})
		}
	}
	s.checksum = digest.Sum64()

	return s
}

// Len returns the number of servers in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.names)
}

// Names returns the server names in lexicographic order.
func (s *Snapshot) Names() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Servers returns every record ordered by name.
func (s *Snapshot) Servers() []ServerRecord {
	records := make([]ServerRecord, 0, len(s.names))
	for _, name := range s.names {
		records = append(records, s.byName[name])
	}
	return records
}

// Server returns the record for the named server.
func (s *Snapshot) Server(name string) (ServerRecord, bool) {
	record, ok := s.byName[name]
	return record, ok
}

// ServerByCertKey returns the server whose bootstrap certificate has the given
// canonical key.
func (s *Snapshot) ServerByCertKey(key string) (ServerRecord, bool) {
	record, ok := s.byCertKey[key]
	return record, ok
}

// CreatedAt returns the time at which the build of the snapshot started.
func (s *Snapshot) CreatedAt() time.Time {
	return s.createdAt
}

// Checksum returns a hash of every record in the snapshot. Two snapshots with
// the same records have the same checksum.
func (s *Snapshot) Checksum() uint64 {
	return s.checksum
}
