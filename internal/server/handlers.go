package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carecompanion/n1/internal/experiment"
	"github.com/carecompanion/n1/internal/export"
	"github.com/carecompanion/n1/internal/session"
)

const userHeader = "X-User-ID"

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

// ExperimentResponse is the view of one user's experiment.
type ExperimentResponse struct {
	UserID            string                  `json:"user_id"`
	Status            experiment.Status       `json:"status"`
	Today             string                  `json:"today"`
	CurrentPhase      experiment.Phase        `json:"current_phase"`
	CurrentPhaseLabel string                  `json:"current_phase_label"`
	DayOffset         *int                    `json:"day_offset,omitempty"`
	Experiment        experiment.State        `json:"experiment"`
	Observation       *experiment.Observation `json:"observation,omitempty"`
	Result            *experiment.Result      `json:"result,omitempty"`
	Message           string                  `json:"message,omitempty"`
	Warning           string                  `json:"warning,omitempty"`
}

type ResultResponse struct {
	Available bool               `json:"available"`
	Result    *experiment.Result `json:"result,omitempty"`
	Message   string             `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	count, err := s.store.CountStates(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRowContext(r.Context(), "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	if err := row.Scan(&dbSize); err != nil {
		s.logger.Debug("failed to read database size", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: count,
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleExperiment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, warning, ok := s.openSession(w, r, false)
	if !ok {
		return
	}

	resp := s.experimentResponse(sess)
	resp.Warning = warning
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	design, err := req.Design()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, _, ok := s.openSession(w, r, true)
	if !ok {
		return
	}

	err = sess.Begin(r.Context(), design)
	if err != nil && !errors.Is(err, session.ErrPersistence) {
		s.writeEngineError(w, err)
		return
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		if uerr := s.store.UpsertUser(r.Context(), sess.UserID(), name); uerr != nil {
			s.logger.Warn("failed to save user name", zap.String("user_id", sess.UserID()), zap.Error(uerr))
		}
	}

	resp := s.experimentResponse(sess)
	resp.Warning = persistenceWarning(err)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, _, ok := s.openSession(w, r, true)
	if !ok {
		return
	}

	date := sess.Today()
	if req.Date != "" {
		d, err := experiment.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		date = d
	}

	obs, err := sess.RecordOn(r.Context(), date, *req.Value)
	if err != nil && !errors.Is(err, session.ErrPersistence) {
		s.writeEngineError(w, err)
		return
	}

	resp := s.experimentResponse(sess)
	resp.Observation = &obs
	resp.Warning = persistenceWarning(err)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, _, ok := s.openSession(w, r, true)
	if !ok {
		return
	}

	if sess.Status() == experiment.StatusUnconfigured {
		writeError(w, http.StatusConflict, experiment.ErrInactiveExperiment.Error())
		return
	}

	result, err := sess.End(r.Context())

	resp := s.experimentResponse(sess)
	resp.Warning = persistenceWarning(err)
	if errors.Is(err, experiment.ErrAnalysisUnavailable) {
		resp.Message = sess.State().AnalysisMessage()
	} else {
		resp.Result = &result
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, _, ok := s.openSession(w, r, false)
	if !ok {
		return
	}

	result, err := sess.Result()
	if err != nil {
		writeJSON(w, http.StatusOK, ResultResponse{Message: sess.State().AnalysisMessage()})
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{Available: true, Result: &result})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	formatParam := r.URL.Query().Get("format")
	if formatParam == "" {
		formatParam = string(export.FormatCSV)
	}
	format, err := export.ParseFormat(formatParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, _, ok := s.openSession(w, r, false)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	if err := export.Write(w, format, sess.State()); err != nil {
		s.logger.Error("failed to export observations", zap.String("user_id", sess.UserID()), zap.Error(err))
	}
}

// openSession loads the requesting user's experiment. Reads tolerate a
// failed load and report it as a warning; writes refuse, so an unreadable
// record is never overwritten by a blank one.
func (s *Server) openSession(w http.ResponseWriter, r *http.Request, forWrite bool) (*session.Session, string, bool) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		userID = r.URL.Query().Get("user")
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "Missing user id ("+userHeader+" header or user query parameter)")
		return nil, "", false
	}

	sess, err := session.Open(r.Context(), userID,
		session.WithStore(s.store),
		session.WithClock(s.clock),
		session.WithLogger(s.logger),
	)
	if err != nil {
		if forWrite {
			writeError(w, http.StatusServiceUnavailable, "Experiment storage unavailable, try again")
			return nil, "", false
		}
		return sess, persistenceWarning(err), true
	}
	return sess, "", true
}

func (s *Server) experimentResponse(sess *session.Session) ExperimentResponse {
	state := sess.State()
	phase := sess.CurrentPhase()

	resp := ExperimentResponse{
		UserID:            sess.UserID(),
		Status:            state.Status(),
		Today:             sess.Today().String(),
		CurrentPhase:      phase,
		CurrentPhaseLabel: state.PhaseLabel(phase),
		Experiment:        state,
	}
	if offset, ok := sess.DayOffset(); ok {
		resp.DayOffset = &offset
	}
	if resp.Experiment.Sequence == nil {
		resp.Experiment.Sequence = []experiment.Phase{}
	}
	if resp.Experiment.Observations == nil {
		resp.Experiment.Observations = []experiment.Observation{}
	}
	return resp
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, experiment.ErrInvalidDesign), errors.Is(err, experiment.ErrInvalidObservation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, experiment.ErrInactiveExperiment):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("experiment operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func persistenceWarning(err error) string {
	if errors.Is(err, session.ErrPersistence) {
		return "Could not save your experiment. Please retry."
	}
	return ""
}

// writeJSON encodes before writing the header, so a value JSON cannot
// represent (NaN, ±Inf) becomes a 500 instead of a truncated body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
