// Package generator renders registry snapshots into IRC daemon configuration.
//
// Each output format is a dialect. A Renderer for a dialect is bound to a Sink when
// it is created, receives every server record through Write, and completes the
// output with Finish:
//
//	dialect, err := generator.Lookup("unrealircd4")
//	...
//	r, err := dialect.NewRenderer(sink)
//	...
//	for _, server := range snapshot.Servers() {
//		r.Write(server)
//	}
//	r.Finish()
package generator

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/authorizer-tech/link-registry/internal/registry"
	"github.com/pkg/errors"
)

// DefaultDialect is used when no dialect name is given.
const DefaultDialect = "unrealircd4"

// ErrUnknownDialect is matched by the error Lookup returns for an unregistered name.
var ErrUnknownDialect = errors.New("unknown dialect")

// UnknownDialectError reports the dialect name that could not be resolved.
type UnknownDialectError struct {
	Name string
}

func (e *UnknownDialectError) Error() string {
	return fmt.Sprintf("unknown generator '%s'", e.Name)
}

// Is reports whether target is ErrUnknownDialect.
func (e *UnknownDialectError) Is(target error) bool {
	return target == ErrUnknownDialect
}

// Sink receives the rendered output. Headers must be set before the first Write.
type Sink interface {
	io.Writer

	// SetHeader records metadata about the output, such as its content type.
	SetHeader(key, value string)

	// End writes the final chunk, which may be empty, and completes the output.
	End(chunk []byte) error
}

// Renderer renders server records in one dialect.
type Renderer interface {

	// Write renders a single server. Servers are rendered in the order Write is
	// called in.
	Write(server registry.ServerRecord) error

	// Finish writes any trailing content and ends the Sink. It must be called
	// exactly once, after the last Write.
	Finish() error
}

type constructor func(sink Sink) (Renderer, error)

// Dialect is a named output format.
type Dialect struct {
	Name string

	newRenderer constructor
}

// NewRenderer returns a Renderer that writes the dialect to sink.
func (d Dialect) NewRenderer(sink Sink) (Renderer, error) {
	return d.newRenderer(sink)
}

var dialects = map[string]constructor{
	"json":        newJSONRenderer,
	"unrealircd3": newUnrealIRCd3Renderer,
	"unrealircd4": newUnrealIRCd4Renderer,
}

// Lookup returns the dialect registered under name. An empty name selects
// DefaultDialect.
func Lookup(name string) (Dialect, error) {

	if name == "" {
		name = DefaultDialect
	}

	newRenderer, ok := dialects[name]
	if !ok {
		return Dialect{}, &UnknownDialectError{Name: name}
	}

	return Dialect{Name: name, newRenderer: newRenderer}, nil
}

// Names returns the names of every dialect in lexicographic order.
func Names() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render writes every server to sink in the named dialect.
func Render(name string, sink Sink, servers []registry.ServerRecord) error {

	dialect, err := Lookup(name)
	if err != nil {
		return err
	}

	r, err := dialect.NewRenderer(sink)
	if err != nil {
		return err
	}

	for _, server := range servers {
		if err := r.Write(server); err != nil {
			return errors.Wrapf(err, "failed to render server '%s'", server.Name)
		}
	}

	return r.Finish()
}

// BufferSink is a Sink that keeps the output and headers in memory.
type BufferSink struct {
	bytes.Buffer

	Headers map[string]string
	Ended   bool
}

// SetHeader records the header.
func (b *BufferSink) SetHeader(key, value string) {
	if b.Headers == nil {
		b.Headers = map[string]string{}
	}
	b.Headers[key] = value
}

// End appends chunk and marks the output as ended.
func (b *BufferSink) End(chunk []byte) error {
	if _, err := b.Write(chunk); err != nil {
		return err
	}
	b.Ended = true
	return nil
}

type writerSink struct {
	io.Writer
}

// NewWriterSink returns a Sink that writes to w and discards headers.
func NewWriterSink(w io.Writer) Sink {
	return writerSink{w}
}

func (w writerSink) SetHeader(key, value string) {}

func (w writerSink) End(chunk []byte) error {
	_, err := w.Write(chunk)
	return err
}

// Always verify that we implement the interface
var _ Sink = &BufferSink{}
