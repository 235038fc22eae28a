package linkregistry

import (
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/authorizer-tech/link-registry/internal/generator"
	"github.com/authorizer-tech/link-registry/internal/registry"
	"github.com/authorizer-tech/link-registry/internal/store"
)

const (
	// maxRequestBodySize bounds the size of an update request body.
	maxRequestBodySize = 64 << 10

	defaultUpdatesLimit = 20
	maxUpdatesLimit     = 100
)

// HandlerOption configures the HTTP handler of a LinkRegistry.
type HandlerOption func(*handler)

// WithClientCertHeader makes the handler read the client certificate from the
// named request header when the connection itself carries none. The header must
// hold the URL-escaped PEM certificate, as set by a TLS terminating proxy (e.g.
// nginx's $ssl_client_escaped_cert).
//
// Only use this behind a proxy which overwrites the header on every request.
func WithClientCertHeader(name string) HandlerOption {
	return func(h *handler) {
		h.clientCertHeader = name
	}
}

type handler struct {
	*LinkRegistry

	clientCertHeader string
}

// Handler returns the HTTP interface of the LinkRegistry:
//
//	GET  /links.conf?syntax=<dialect>  the rendered link configuration
//	POST /update                       replace the live certificate of the caller
//	GET  /dialects                     the available dialects
//	GET  /servers/{name}/updates       the certificate update history of a server
//	GET  /pid                          the process id
func (l *LinkRegistry) Handler(opts ...HandlerOption) http.Handler {

	h := &handler{LinkRegistry: l}
	for _, opt := range opts {
		opt(h)
	}

	router := mux.NewRouter()
	router.HandleFunc("/links.conf", h.linksConf).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/update", h.update).Methods(http.MethodPost)
	router.HandleFunc("/dialects", h.dialects).Methods(http.MethodGet)
	router.HandleFunc("/servers/{name}/updates", h.updates).Methods(http.MethodGet)
	router.HandleFunc("/pid", h.pid).Methods(http.MethodGet)

	return router
}

func (h *handler) linksConf(w http.ResponseWriter, r *http.Request) {

	p, err := h.Publication(r.Context(), r.URL.Query().Get("syntax"))
	if err != nil {
		respondWithError(w, err)
		return
	}

	etag := p.ETag()
	w.Header().Set("ETag", etag)

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if err := p.Render(responseSink{w}); err != nil {
		// the status line is already out, all that's left is to log it
		log.WithFields(log.Fields{
			"dialect": p.Dialect.Name,
		}).WithError(err).Error("Failed to render link configuration")
	}
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := r.ParseMultipartForm(maxRequestBodySize); err != nil && err != http.ErrNotMultipart {
		respondWithError(w, errors.Wrapf(ErrBadRequest, "failed to parse request body: %v", err))
		return
	}

	update, err := h.UpdateCertificate(r.Context(), h.clientCertificate(r), r.PostForm.Get("cert"))
	if err != nil {
		respondWithError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Updated certificate for %s", update.Server)
}

func (h *handler) dialects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, generator.Names())
}

func (h *handler) updates(w http.ResponseWriter, r *http.Request) {

	limit := defaultUpdatesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxUpdatesLimit {
			respondWithError(w, errors.Wrapf(ErrBadRequest, "'limit' must be an integer between 1 and %d", maxUpdatesLimit))
			return
		}
		limit = n
	}

	updates, err := h.ListUpdates(r.Context(), mux.Vars(r)["name"], limit)
	if err != nil {
		respondWithError(w, err)
		return
	}

	writeJSON(w, updates)
}

func (h *handler) pid(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%d", os.Getpid())
}

// clientCertificate returns the PEM encoded certificate the client presented, or
// an empty string if there is none.
func (h *handler) clientCertificate(r *http.Request) string {

	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		return string(pem.EncodeToMemory(&pem.Block{
			Type:  "CERTIFICATE",
			Bytes: r.TLS.PeerCertificates[0].Raw,
		}))
	}

	if h.clientCertHeader == "" {
		return ""
	}

	value := r.Header.Get(h.clientCertHeader)
	if unescaped, err := url.PathUnescape(value); err == nil {
		return unescaped
	}

	return value
}

// responseSink adapts an http.ResponseWriter to a generator.Sink.
type responseSink struct {
	w http.ResponseWriter
}

func (s responseSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s responseSink) SetHeader(key, value string) {
	s.w.Header().Set(key, value)
}

func (s responseSink) End(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	_, err := s.w.Write(chunk)
	return err
}

func writeJSON(w http.ResponseWriter, v interface{}) {

	blob, err := json.Marshal(v)
	if err != nil {
		respondWithError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(blob)
}

// respondWithError writes err to the response with the status code matching its
// kind. Errors of unknown kind are logged and reported as internal errors.
func respondWithError(w http.ResponseWriter, err error) {

	code := http.StatusInternalServerError

	var parseErr *registry.MetadataParseError
	var ioErr *store.IOError

	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, generator.ErrUnknownDialect):
		code = http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		code = http.StatusForbidden
	case errors.As(err, &parseErr):
		log.WithField("path", parseErr.Path).Errorf("Invalid server metadata: %v", err)
	case errors.As(err, &ioErr):
		log.WithField("path", ioErr.Path).Errorf("Filesystem failure: %v", err)
	default:
		log.Errorf("Unhandled error: %v", err)
	}

	http.Error(w, err.Error(), code)
}

// Always verify that we implement the interface
var _ generator.Sink = responseSink{}
