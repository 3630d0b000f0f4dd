package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/lcalzada-xor/lankill/internal/core/services/network"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WEB] Encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, network.ErrUnknownDevice) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// handleListDevices returns all known devices ordered by IP.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Service.Devices(r.Context()))
}

// handleNetworkInfo returns the current network snapshot.
func (s *Server) handleNetworkInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Service.NetworkInfo(r.Context()))
}

// handleScan triggers a background sweep.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.Service.Scanning() {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "scan_in_progress"})
		return
	}
	s.Service.TriggerScan(s.baseCtx)
	writeJSON(w, http.StatusOK, map[string]string{"status": "scan_initiated"})
}

// handleGetDevice returns one device by MAC.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Service.Device(r.Context(), mux.Vars(r)["mac"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleSelect toggles the selection flag. Body: {"selected": bool}.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Selected bool `json:"selected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	rec, err := s.Service.SetSelected(r.Context(), mux.Vars(r)["mac"], body.Selected)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleKill flags one device for poisoning.
func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Service.Kill(r.Context(), mux.Vars(r)["mac"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRestore releases one device from poisoning.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Service.Restore(r.Context(), mux.Vars(r)["mac"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleKillAll flags every non-protected device; ?selected=true restricts
// the operation to selected devices.
func (s *Server) handleKillAll(w http.ResponseWriter, r *http.Request) {
	var count int
	if r.URL.Query().Get("selected") == "true" {
		count = s.Service.KillSelected(r.Context())
	} else {
		count = s.Service.KillAll(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]int{"killed": count})
}

// handleRestoreAll releases every killed device; ?selected=true restricts
// to selected devices.
func (s *Server) handleRestoreAll(w http.ResponseWriter, r *http.Request) {
	var count int
	if r.URL.Query().Get("selected") == "true" {
		count = s.Service.RestoreSelected(r.Context())
	} else {
		count = s.Service.RestoreAll(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]int{"restored": count})
}

// handleAuditLog returns recent operator actions, newest first.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	entries, err := s.Service.AuditLog(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
