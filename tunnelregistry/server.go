package tunnelregistry

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const tunnelsPrefix = "/remotexpc/tunnels"

// Server exposes a Registry over the tunnel registry HTTP API.
type Server struct {
	registry *Registry
	listener net.Listener
	http     *http.Server
}

// Listen binds a listener on an OS-chosen port and builds a Server
// around it, but does not yet start serving.
func Listen(registry *Registry) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen tunnel registry api: %w", err)
	}
	mux := http.NewServeMux()
	s := &Server{registry: registry, listener: ln, http: &http.Server{Handler: mux}}
	mux.HandleFunc(tunnelsPrefix, s.handleTunnels)
	mux.HandleFunc(tunnelsPrefix+"/", s.handleTunnelsPrefixed)
	mux.HandleFunc("/", notFound)
	return s, nil
}

// Port returns the OS-chosen TCP port this server is listening on.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Serve blocks, accepting connections until Shutdown is called.
func (s *Server) Serve() error {
	err := s.http.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown tears the server down cleanly, closing the listener.
func (s *Server) Shutdown() error {
	return s.http.Close()
}

func (s *Server) handleTunnels(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != tunnelsPrefix {
		notFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		notFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

func (s *Server) handleTunnelsPrefixed(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, tunnelsPrefix+"/")
	if rest == "" {
		notFound(w, r)
		return
	}

	if deviceID, ok := strings.CutPrefix(rest, "device/"); ok {
		s.handleByDeviceID(w, r, deviceID)
		return
	}

	udid := rest
	switch r.Method {
	case http.MethodGet:
		s.handleGetByUDID(w, udid)
	case http.MethodPut:
		s.handlePutByUDID(w, r, udid)
	default:
		notFound(w, r)
	}
}

func (s *Server) handleGetByUDID(w http.ResponseWriter, udid string) {
	entry, ok := s.registry.Get(udid)
	if !ok {
		notFoundJSON(w)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleByDeviceID(w http.ResponseWriter, r *http.Request, raw string) {
	if r.Method != http.MethodGet {
		notFound(w, r)
		return
	}
	deviceID, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "device id must be an integer"})
		return
	}
	entry, ok := s.registry.GetByDeviceID(deviceID)
	if !ok {
		notFoundJSON(w)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handlePutByUDID(w http.ResponseWriter, r *http.Request, udid string) {
	var entry Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
		return
	}
	if entry.UDID != udid {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body udid does not match path udid"})
		return
	}

	stored := s.registry.Upsert(entry, time.Now())
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tunnel": stored})
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	notFoundJSON(w)
}

func notFoundJSON(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("tunnel registry: failed to encode response")
	}
}
