package generator

import (
	"fmt"
	"strings"

	"github.com/authorizer-tech/link-registry/internal/registry"
)

const trailer = "/* end */\n"

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quote renders s as a double quoted UnrealIRCd config string.
func quote(s string) string {
	return `"` + quoteEscaper.Replace(s) + `"`
}

// commentSafe keeps s from terminating the comment it is embedded in.
func commentSafe(s string) string {
	return strings.ReplaceAll(s, "*/", "* /")
}

func writeHeaderComment(sink Sink, syntax string) error {

	sink.SetHeader("Content-Type", "text/plain; charset=utf-8")

	_, err := fmt.Fprintf(sink, "/*\n * Generated by link-registry.\n * syntax=%s\n */\n", syntax)
	return err
}

func writeOmittedComment(sink Sink, server registry.ServerRecord) error {
	_, err := fmt.Fprintf(sink, "/* Omitting %s: no unrealircd certificate specified. */\n", commentSafe(server.Name))
	return err
}

// options renders the link options block entries, one per line at the given
// indentation. Boolean options are only listed when enabled.
func options(server registry.ServerRecord, indent string, always ...string) string {

	var b strings.Builder

	if server.Autoconnect {
		b.WriteString(indent + "autoconnect;\n")
	}
	for _, option := range always {
		b.WriteString(indent + option + ";\n")
	}

	return b.String()
}

type unrealIRCd4Renderer struct {
	sink Sink
}

func newUnrealIRCd4Renderer(sink Sink) (Renderer, error) {

	if err := writeHeaderComment(sink, "unrealircd4"); err != nil {
		return nil, err
	}

	return &unrealIRCd4Renderer{sink: sink}, nil
}

func (r *unrealIRCd4Renderer) Write(server registry.ServerRecord) error {

	if !server.HasLiveCert() {
		return writeOmittedComment(r.sink, server)
	}

	_, err := fmt.Fprintf(r.sink, `link %s {
  incoming {
    mask *;
  };
  outgoing {
    hostname %s;
    port %d;
    options {
%s    };
  };
  password %s { sslclientcertfp; };
  hub *;
  class servers;
};

`,
		server.Name,
		quote(server.Hostname),
		server.Port,
		options(server, "      ", "ssl"),
		quote(server.LiveCertFingerprint),
	)

	return err
}

func (r *unrealIRCd4Renderer) Finish() error {
	return r.sink.End([]byte(trailer))
}

type unrealIRCd3Renderer struct {
	sink Sink
}

func newUnrealIRCd3Renderer(sink Sink) (Renderer, error) {

	if err := writeHeaderComment(sink, "unrealircd3"); err != nil {
		return nil, err
	}

	return &unrealIRCd3Renderer{sink: sink}, nil
}

func (r *unrealIRCd3Renderer) Write(server registry.ServerRecord) error {

	if !server.HasLiveCert() {
		return writeOmittedComment(r.sink, server)
	}

	_, err := fmt.Fprintf(r.sink, `link %s {
  username *;
  hostname %s;
  bind-ip *;
  port %d;
  password-connect *;
  password-receive %s { sslclientcertfp; };
  class servers;
  options {
%s  };
  hub *;
};

`,
		server.Name,
		quote(server.Hostname),
		server.Port,
		quote(server.LiveCertFingerprint),
		options(server, "    ", "ssl", "nohostcheck"),
	)

	return err
}

func (r *unrealIRCd3Renderer) Finish() error {
	return r.sink.End([]byte(trailer))
}
