package generator

import (
	"encoding/json"

	"github.com/authorizer-tech/link-registry/internal/registry"
)

// jsonServer lists every field the json dialect publishes. Records are copied
// field by field so that nothing else on a ServerRecord is ever exposed.
type jsonServer struct {
	Autoconnect           bool    `json:"autoconnect"`
	Hostname              string  `json:"hostname"`
	Port                  int     `json:"port"`
	UnrealCertFingerprint *string `json:"unrealCertFingerprint"`
}

type jsonRenderer struct {
	sink    Sink
	servers map[string]jsonServer
}

func newJSONRenderer(sink Sink) (Renderer, error) {

	sink.SetHeader("Content-Type", "application/json; charset=utf-8")

	return &jsonRenderer{
		sink:    sink,
		servers: map[string]jsonServer{},
	}, nil
}

func (r *jsonRenderer) Write(server registry.ServerRecord) error {

	s := jsonServer{
		Autoconnect: server.Autoconnect,
		Hostname:    server.Hostname,
		Port:        server.Port,
	}

	if server.HasLiveCert() {
		fingerprint := server.LiveCertFingerprint
		s.UnrealCertFingerprint = &fingerprint
	}

	r.servers[server.Name] = s

	return nil
}

func (r *jsonRenderer) Finish() error {

	blob, err := json.Marshal(r.servers)
	if err != nil {
		return err
	}

	return r.sink.End(blob)
}
