package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/setup-robot/wifi-connect/pkg/provisioner"
	"github.com/setup-robot/wifi-connect/pkg/radio"
	"github.com/setup-robot/wifi-connect/pkg/store"
	log "github.com/sirupsen/logrus"
)

// Session is the slice of the provisioner the portal drives.
type Session interface {
	Submit(cred store.NetworkCredential) error
	Status() provisioner.Snapshot
	Reprovision(ctx context.Context) error
	RequestShutdown()
}

// Scanner lists visible networks for the portal page.
type Scanner interface {
	Scan(ctx context.Context) ([]radio.Network, error)
}

// Server is the captive portal: the daemon's only network-facing surface.
// It binds the wildcard address by default since the hotspot gateway
// address only exists once the shared profile is active.
type Server struct {
	session Session
	scanner Scanner
	srv     *http.Server
}

func New(addr string, session Session, scanner Scanner) *Server {
	s := &Server{session: session, scanner: scanner}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/portal", s.handleIndex)
	mux.HandleFunc("/scan", s.handleScan)
	mux.HandleFunc("/connect", s.handleConnect)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/reset", s.handleReset)
	mux.HandleFunc("/shutdown", s.handleShutdown)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Infof("serving captive portal on http://%v", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/portal" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(portalHTML))
}

// handleScan is best effort: a driver error degrades to an empty list
// rather than failing the request.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	networks, err := s.scanner.Scan(r.Context())
	if err != nil {
		log.Errorf("failed to scan networks: %v", err)
		networks = nil
	}
	if networks == nil {
		networks = []radio.Network{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"networks": networks,
	})
}

type connectRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	cred := store.NetworkCredential{SSID: req.SSID, Passphrase: req.Password}
	err := s.session.Submit(cred)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"success": true,
			"status":  "pending",
			"ssid":    cred.SSID,
			"message": "Connection attempt started. Poll /status for the outcome.",
		})
	case errors.Is(err, store.ErrInvalidCredential):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, provisioner.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Errorf("connection error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

// handleReset forgets the stored credential and puts the hotspot back up so
// an already-provisioned device can be moved to another network.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	err := s.session.Reprovision(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Device reset. Hotspot is coming back up.",
		})
	case errors.Is(err, provisioner.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Errorf("reset error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	log.Infof("operator requested portal shutdown")
	s.session.RequestShutdown()
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("error writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   reason,
	})
}
