package store

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/sweeney/study-station/internal/logic"
)

// maxBody bounds API request bodies.
const maxBody = 64 << 10

// RegisterAPI mounts the signal store API on mux. Remote is its client.
func RegisterAPI(mux *http.ServeMux, s SignalStore) {
	mux.HandleFunc("GET "+PathSignal, func(w http.ResponseWriter, r *http.Request) {
		sig, err := s.LatestSignal(r.Context())
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "no signal", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Printf("api: latest signal: %v", err)
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, sig)
	})

	mux.HandleFunc("PUT "+PathSignal, func(w http.ResponseWriter, r *http.Request) {
		var sig logic.SyncSignal
		if !readJSON(w, r, &sig) {
			return
		}
		if sig.SessionID == "" || sig.Phase == "" {
			http.Error(w, "session_id and phase are required", http.StatusBadRequest)
			return
		}
		if err := s.UpdatePhase(r.Context(), sig); err != nil {
			log.Printf("api: update phase: %v", err)
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST "+PathMeasurements, func(w http.ResponseWriter, r *http.Request) {
		var m logic.Measurement
		if !readJSON(w, r, &m) {
			return
		}
		if m.SessionID == "" || m.Kind == "" {
			http.Error(w, "session_id and kind are required", http.StatusBadRequest)
			return
		}
		err := s.AppendMeasurement(r.Context(), m)
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Printf("api: append measurement: %v", err)
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}
