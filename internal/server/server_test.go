package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/carecompanion/n1/internal/experiment"
	"github.com/carecompanion/n1/internal/server"
	"github.com/carecompanion/n1/internal/session"
	"github.com/carecompanion/n1/internal/store"
	"github.com/carecompanion/n1/internal/testutil"
)

func setupTestServer(t *testing.T, today string) (*server.Server, *store.SQLiteStore) {
	t.Helper()

	s := testutil.SetupTestStore(t)
	srv := server.New(s, 0, "", server.WithClock(session.FixedClock(testutil.MustDate(t, today))))
	return srv, s
}

func do(t *testing.T, srv *server.Server, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+srv.Token())
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func beginWeek(t *testing.T, srv *server.Server, user string) {
	t.Helper()

	w := do(t, srv, http.MethodPost, "/api/experiment/begin", user, server.BeginRequest{
		PhaseALabel:     "Late snack",
		PhaseBLabel:     "No late snack",
		MetricLabel:     "Morning BP",
		StartDate:       "2024-01-01",
		PhaseLengthDays: 7,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("begin: expected status 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")
	beginWeek(t, srv, "alex")

	w := do(t, srv, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	health := decode[server.HealthResponse](t, w)
	if health.Status != "ok" {
		t.Errorf("expected status ok, got %s", health.Status)
	}
	if health.ExperimentsCount != 1 {
		t.Errorf("expected 1 experiment, got %d", health.ExperimentsCount)
	}
}

func TestExperiment_Unconfigured(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")

	w := do(t, srv, http.MethodGet, "/api/experiment?user=new-user", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	resp := decode[server.ExperimentResponse](t, w)
	if resp.Status != experiment.StatusUnconfigured {
		t.Errorf("expected unconfigured, got %s", resp.Status)
	}
	if resp.CurrentPhase != experiment.PhaseA {
		t.Errorf("expected fallback phase A, got %s", resp.CurrentPhase)
	}
	if resp.DayOffset != nil {
		t.Errorf("expected no day offset, got %d", *resp.DayOffset)
	}
}

func TestExperiment_MissingUser(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")

	w := do(t, srv, http.MethodGet, "/api/experiment", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestBegin_ReportsPhase(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-10")
	beginWeek(t, srv, "alex")

	resp := decode[server.ExperimentResponse](t, do(t, srv, http.MethodGet, "/api/experiment", "alex", nil))

	if resp.Status != experiment.StatusActive {
		t.Errorf("expected active, got %s", resp.Status)
	}
	if resp.CurrentPhase != experiment.PhaseB {
		t.Errorf("expected phase B on offset 9, got %s", resp.CurrentPhase)
	}
	if resp.CurrentPhaseLabel != "No late snack" {
		t.Errorf("expected B label, got %q", resp.CurrentPhaseLabel)
	}
	if resp.DayOffset == nil || *resp.DayOffset != 9 {
		t.Errorf("expected day offset 9, got %v", resp.DayOffset)
	}
	if len(resp.Experiment.Sequence) != 14 {
		t.Errorf("expected 14-day sequence, got %d", len(resp.Experiment.Sequence))
	}
}

func TestBegin_Validation(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")

	tests := []struct {
		name string
		body interface{}
	}{
		{"too short", server.BeginRequest{PhaseLengthDays: 2}},
		{"too long", server.BeginRequest{PhaseLengthDays: 15}},
		{"missing length", server.BeginRequest{MetricLabel: "BP"}},
		{"bad date", server.BeginRequest{PhaseLengthDays: 7, StartDate: "01/02/2024"}},
		{"long label", server.BeginRequest{PhaseLengthDays: 7, PhaseALabel: strings.Repeat("x", 121)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/api/experiment/begin", "alex", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestBegin_InvalidJSON(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")

	req := httptest.NewRequest(http.MethodPost, "/api/experiment/begin", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+srv.Token())
	req.Header.Set("X-User-ID", "alex")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestBegin_MethodNotAllowed(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")

	w := do(t, srv, http.MethodGet, "/api/experiment/begin", "alex", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestObservations_TaggedWithPhase(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")
	beginWeek(t, srv, "alex")

	value := 128.5
	w := do(t, srv, http.MethodPost, "/api/experiment/observations", "alex", server.ObservationRequest{Value: &value})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[server.ExperimentResponse](t, w)
	if resp.Observation == nil || resp.Observation.Phase != experiment.PhaseA {
		t.Fatalf("expected observation in phase A, got %+v", resp.Observation)
	}
	if resp.Observation.Date.String() != "2024-01-03" {
		t.Errorf("expected today's date, got %s", resp.Observation.Date)
	}

	backfill := 119.0
	w = do(t, srv, http.MethodPost, "/api/experiment/observations", "alex", server.ObservationRequest{Value: &backfill, Date: "2024-01-09"})
	resp = decode[server.ExperimentResponse](t, w)
	if resp.Observation.Phase != experiment.PhaseB {
		t.Errorf("expected backfilled observation in phase B, got %s", resp.Observation.Phase)
	}
	if len(resp.Experiment.Observations) != 2 {
		t.Errorf("expected 2 observations, got %d", len(resp.Experiment.Observations))
	}
}

func TestObservations_Validation(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")
	beginWeek(t, srv, "alex")

	negative := -1.0
	huge := 401.0
	tests := []struct {
		name string
		body interface{}
	}{
		{"missing value", map[string]string{}},
		{"negative", server.ObservationRequest{Value: &negative}},
		{"above range", server.ObservationRequest{Value: &huge}},
		{"string value", map[string]string{"value": "high"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/api/experiment/observations", "alex", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestObservations_Inactive(t *testing.T) {
	srv, s := setupTestServer(t, "2024-01-03")

	value := 120.0
	w := do(t, srv, http.MethodPost, "/api/experiment/observations", "alex", server.ObservationRequest{Value: &value})
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409 with no experiment, got %d", w.Code)
	}

	beginWeek(t, srv, "alex")
	do(t, srv, http.MethodPost, "/api/experiment/end", "alex", nil)

	w = do(t, srv, http.MethodPost, "/api/experiment/observations", "alex", server.ObservationRequest{Value: &value})
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409 after end, got %d", w.Code)
	}

	state, err := s.LoadState(context.Background(), "alex")
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	if len(state.Observations) != 0 {
		t.Errorf("expected no observations stored, got %d", len(state.Observations))
	}
}

func TestEnd_WithResult(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-20")
	beginWeek(t, srv, "alex")

	for _, o := range []struct {
		date  string
		value float64
	}{
		{"2024-01-02", 120}, {"2024-01-03", 130}, {"2024-01-08", 110}, {"2024-01-09", 100},
	} {
		v := o.value
		w := do(t, srv, http.MethodPost, "/api/experiment/observations", "alex", server.ObservationRequest{Value: &v, Date: o.date})
		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", w.Code)
		}
	}

	w := do(t, srv, http.MethodPost, "/api/experiment/end", "alex", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	resp := decode[server.ExperimentResponse](t, w)
	if resp.Status != experiment.StatusClosed {
		t.Errorf("expected closed, got %s", resp.Status)
	}
	if resp.Result == nil {
		t.Fatal("expected result")
	}
	if resp.Result.MeanA != 125 || resp.Result.MeanB != 105 || resp.Result.Delta != -20 {
		t.Errorf("unexpected result %+v", resp.Result)
	}

	result := decode[server.ResultResponse](t, do(t, srv, http.MethodGet, "/api/experiment/result", "alex", nil))
	if !result.Available || result.Result.Delta != -20 {
		t.Errorf("expected read-only result after end, got %+v", result)
	}
}

func TestEnd_AnalysisUnavailable(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")
	beginWeek(t, srv, "alex")

	w := do(t, srv, http.MethodPost, "/api/experiment/end", "alex", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	resp := decode[server.ExperimentResponse](t, w)
	if resp.Result != nil {
		t.Errorf("expected no result, got %+v", resp.Result)
	}
	if resp.Message != "No observations to analyze." {
		t.Errorf("unexpected message %q", resp.Message)
	}
	if resp.Status != experiment.StatusClosed {
		t.Errorf("expected closed even without analysis, got %s", resp.Status)
	}
}

func TestEnd_Unconfigured(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")

	w := do(t, srv, http.MethodPost, "/api/experiment/end", "alex", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", w.Code)
	}
}

func TestResult_OnePhaseOnly(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")
	beginWeek(t, srv, "alex")

	value := 120.0
	do(t, srv, http.MethodPost, "/api/experiment/observations", "alex", server.ObservationRequest{Value: &value})

	result := decode[server.ResultResponse](t, do(t, srv, http.MethodGet, "/api/experiment/result", "alex", nil))
	if result.Available {
		t.Error("expected analysis to be unavailable")
	}
	if result.Message != "Need at least one value in each phase." {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestCorruptRecord_TreatedAsUnconfigured(t *testing.T) {
	srv, s := setupTestServer(t, "2024-01-03")
	beginWeek(t, srv, "alex")

	if _, err := s.DB().Exec(`UPDATE experiment_states SET state = '{"sequence": 5}'`); err != nil {
		t.Fatalf("failed to corrupt state: %v", err)
	}

	resp := decode[server.ExperimentResponse](t, do(t, srv, http.MethodGet, "/api/experiment", "alex", nil))
	if resp.Status != experiment.StatusUnconfigured {
		t.Errorf("expected unconfigured, got %s", resp.Status)
	}

	// A fresh begin replaces the corrupt record.
	beginWeek(t, srv, "alex")
	if _, err := s.LoadState(context.Background(), "alex"); err != nil {
		t.Errorf("expected readable record after begin, got %v", err)
	}
}

func TestExport(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")
	beginWeek(t, srv, "alex")

	value := 120.0
	do(t, srv, http.MethodPost, "/api/experiment/observations", "alex", server.ObservationRequest{Value: &value})

	w := do(t, srv, http.MethodGet, "/api/experiment/export", "alex", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), "2024-01-03,A,120") {
		t.Errorf("expected observation row, got:\n%s", w.Body.String())
	}

	w = do(t, srv, http.MethodGet, "/api/experiment/export?format=yaml", "alex", nil)
	if !strings.Contains(w.Body.String(), "metric: Morning BP") {
		t.Errorf("expected yaml document, got:\n%s", w.Body.String())
	}

	w = do(t, srv, http.MethodGet, "/api/experiment/export?format=xml", "alex", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown format, got %d", w.Code)
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")

	tests := []struct {
		name   string
		auth   string
		cookie string
		want   int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"wrong bearer", "Bearer nope", "", http.StatusUnauthorized},
		{"not bearer", srv.Token(), "", http.StatusUnauthorized},
		{"bearer", "Bearer " + srv.Token(), "", http.StatusOK},
		{"dashboard cookie", "", srv.Token(), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/experiment?user=alex", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "n1_token", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestAPI_WritesRequireToken(t *testing.T) {
	srv, s := setupTestServer(t, "2024-01-03")

	body := strings.NewReader(`{"phaseLengthDays": 7}`)
	req := httptest.NewRequest(http.MethodPost, "/api/experiment/begin", body)
	req.Header.Set("X-User-ID", "alex")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
	if _, err := s.LoadState(context.Background(), "alex"); err == nil {
		t.Error("expected no record written without a token")
	}
}

func TestObservations_CaptureBounds(t *testing.T) {
	srv, _ := setupTestServer(t, "2024-01-03")
	beginWeek(t, srv, "alex")

	for _, v := range []float64{experiment.MinObservationValue, experiment.MaxObservationValue} {
		value := v
		w := do(t, srv, http.MethodPost, "/api/experiment/observations", "alex", server.ObservationRequest{Value: &value})
		if w.Code != http.StatusCreated {
			t.Errorf("value %v: expected status 201, got %d: %s", v, w.Code, w.Body.String())
		}
	}

	over := float64(experiment.MaxObservationValue) + 0.5
	w := do(t, srv, http.MethodPost, "/api/experiment/observations", "alex", server.ObservationRequest{Value: &over})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 above the bound, got %d", w.Code)
	}
}

func TestBegin_SavesName(t *testing.T) {
	srv, s := setupTestServer(t, "2024-01-03")

	w := do(t, srv, http.MethodPost, "/api/experiment/begin", "alex", server.BeginRequest{
		Name:            "  Alex  ",
		PhaseLengthDays: 7,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	u, err := s.GetUser(context.Background(), "alex")
	if err != nil {
		t.Fatalf("failed to get user: %v", err)
	}
	if u.Name != "Alex" {
		t.Errorf("expected name Alex, got %q", u.Name)
	}

	w = do(t, srv, http.MethodPost, "/api/experiment/begin", "alex", server.BeginRequest{
		Name:            strings.Repeat("x", 81),
		PhaseLengthDays: 7,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for a long name, got %d", w.Code)
	}
}
