package server

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/carecompanion/n1/internal/dashboard"
	"github.com/carecompanion/n1/internal/experiment"
)

// Dashboard template data structures
type layoutData struct {
	Title string
	CSS   template.CSS
	Data  interface{}
}

type listData struct {
	Experiments []experimentListItem
}

type experimentListItem struct {
	UserID       string
	Name         string
	Status       string
	Corrupt      bool
	Metric       string
	PhaseA       string
	PhaseB       string
	CurrentPhase string
	Observations int
	Delta        string
	UpdatedAt    string
}

type detailData struct {
	UserID            string
	Name              string
	Status            string
	Metric            string
	PhaseA            string
	PhaseB            string
	StartDate         string
	PhaseLengthDays   int
	Today             string
	CurrentPhase      string
	CurrentPhaseLabel string
	Schedule          []scheduleDay
	Observations      []experiment.Observation
	Result            *experiment.Result
	Message           string
	Warning           string
}

type scheduleDay struct {
	Date  string
	Phase string
	Today bool
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("logout") == "1" {
		clearTokenCookie(w)
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	states, err := s.store.ListStates(r.Context())
	if err != nil {
		s.logger.Error("failed to list experiments", zap.Error(err))
		http.Error(w, "Failed to load experiments", http.StatusInternalServerError)
		return
	}

	today := s.clock.Today()
	items := make([]experimentListItem, len(states))
	for i, us := range states {
		delta := "—"
		if result, err := experiment.ComputeResult(us.State.Observations); err == nil {
			delta = fmt.Sprintf("%+.1f", result.Delta)
		}

		currentPhase := "—"
		if us.State.Status() == experiment.StatusActive {
			currentPhase = string(experiment.CurrentPhase(us.State, today))
		}

		items[i] = experimentListItem{
			UserID:       us.UserID,
			Name:         us.UserName,
			Status:       string(us.State.Status()),
			Corrupt:      us.Corrupt,
			Metric:       us.State.MetricLabel,
			PhaseA:       us.State.PhaseALabel,
			PhaseB:       us.State.PhaseBLabel,
			CurrentPhase: currentPhase,
			Observations: len(us.State.Observations),
			Delta:        delta,
			UpdatedAt:    us.UpdatedAt.Format("Jan 2, 2006"),
		}
	}

	s.renderDashboard(w, "Dashboard", "list.html", listData{Experiments: items})
}

func (s *Server) handleDashboardUser(w http.ResponseWriter, r *http.Request) {
	// Extract user id from path: /dashboard/user/<id>
	userID := strings.TrimPrefix(r.URL.Path, "/dashboard/user/")
	if userID == "" || strings.Contains(userID, "/") {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	q.Set("user", userID)
	r.URL.RawQuery = q.Encode()
	r.Header.Del(userHeader)

	sess, warning, ok := s.openSession(w, r, false)
	if !ok {
		return
	}

	state := sess.State()
	today := sess.Today()
	phase := sess.CurrentPhase()

	data := detailData{
		UserID:            userID,
		Status:            string(state.Status()),
		Metric:            state.MetricLabel,
		PhaseA:            state.PhaseALabel,
		PhaseB:            state.PhaseBLabel,
		StartDate:         state.StartDate.String(),
		PhaseLengthDays:   state.PhaseLengthDays,
		Today:             today.String(),
		CurrentPhase:      string(phase),
		CurrentPhaseLabel: state.PhaseLabel(phase),
		Warning:           warning,
	}

	offset, hasOffset := state.DayOffset(today)
	for _, day := range state.Schedule() {
		data.Schedule = append(data.Schedule, scheduleDay{
			Date:  day.Date.String(),
			Phase: string(day.Phase),
			Today: hasOffset && state.Active && day.Offset == offset,
		})
	}

	// Newest first
	data.Observations = slices.Clone(state.Observations)
	slices.Reverse(data.Observations)

	if result, err := sess.Result(); err == nil {
		data.Result = &result
	} else {
		data.Message = state.AnalysisMessage()
	}

	if u, err := s.store.GetUser(r.Context(), userID); err == nil {
		data.Name = u.Name
	}

	title := state.MetricLabel
	if title == "" {
		title = userID
	}
	s.renderDashboard(w, title, "detail.html", data)
}

func (s *Server) renderDashboard(w http.ResponseWriter, title, contentTemplate string, data interface{}) {
	cssBytes, err := dashboard.Assets.ReadFile("assets/style.css")
	if err != nil {
		http.Error(w, "Failed to load styles", http.StatusInternalServerError)
		return
	}

	tmpl, err := template.ParseFS(dashboard.Templates, "templates/layout.html", "templates/"+contentTemplate)
	if err != nil {
		s.logger.Error("failed to parse dashboard templates", zap.String("template", contentTemplate), zap.Error(err))
		http.Error(w, "Failed to parse template", http.StatusInternalServerError)
		return
	}

	// Render into a buffer so a template error does not leave a half page.
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout.html", layoutData{
		Title: title,
		CSS:   template.CSS(cssBytes),
		Data:  data,
	}); err != nil {
		s.logger.Error("failed to render dashboard", zap.String("template", contentTemplate), zap.Error(err))
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}
