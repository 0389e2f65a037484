// Package experiment implements N-of-1 self-experiments: an A/B phase
// schedule anchored on a start date, observations tagged with the phase in
// effect on the day they were taken, and a mean-difference summary.
//
// Everything here is pure. Callers own the State value and decide when to
// persist it.
package experiment

import (
	"errors"
	"fmt"
	"math"
)

const (
	MinPhaseLength = 3
	MaxPhaseLength = 14
)

// Capture bounds for a single observed value. The engine itself only
// rejects non-finite values; the CLI and HTTP surfaces enforce these.
const (
	MinObservationValue = 0
	MaxObservationValue = 400
)

var (
	ErrInvalidDesign       = errors.New("invalid experiment design")
	ErrInactiveExperiment  = errors.New("experiment is not active")
	ErrAnalysisUnavailable = errors.New("analysis unavailable: need at least one observation in each phase")
	ErrInvalidObservation  = errors.New("invalid observation")
	ErrMalformedState      = errors.New("malformed experiment state")
)

type Phase string

const (
	PhaseA Phase = "A"
	PhaseB Phase = "B"
)

func (p Phase) Valid() bool {
	return p == PhaseA || p == PhaseB
}

func (p *Phase) UnmarshalText(text []byte) error {
	v := Phase(text)
	if !v.Valid() {
		return fmt.Errorf("unknown phase %q", string(text))
	}
	*p = v
	return nil
}

type Status string

const (
	StatusUnconfigured Status = "unconfigured"
	StatusActive       Status = "active"
	StatusClosed       Status = "closed"
)

// Design is the user-supplied configuration of a trial.
type Design struct {
	PhaseALabel     string
	PhaseBLabel     string
	MetricLabel     string
	StartDate       Date
	PhaseLengthDays int
}

type Observation struct {
	Date  Date    `json:"date"`
	Phase Phase   `json:"phase"`
	Value float64 `json:"value"`
}

// State is the whole persisted record of one user's experiment.
type State struct {
	PhaseALabel     string        `json:"phaseALabel"`
	PhaseBLabel     string        `json:"phaseBLabel"`
	MetricLabel     string        `json:"metricLabel"`
	StartDate       Date          `json:"startDate"`
	PhaseLengthDays int           `json:"phaseLengthDays"`
	Sequence        []Phase       `json:"sequence"`
	Active          bool          `json:"active"`
	Observations    []Observation `json:"observations"`
}

// ScheduledDay is one entry of the phase schedule.
type ScheduledDay struct {
	Offset int
	Date   Date
	Phase  Phase
}

// BuildSequence returns two blocks of n days: n A's followed by n B's.
func BuildSequence(phaseLengthDays int) ([]Phase, error) {
	if err := validatePhaseLength(phaseLengthDays); err != nil {
		return nil, err
	}

	seq := make([]Phase, 2*phaseLengthDays)
	for i := range seq {
		if (i/phaseLengthDays)%2 == 0 {
			seq[i] = PhaseA
		} else {
			seq[i] = PhaseB
		}
	}
	return seq, nil
}

func validatePhaseLength(n int) error {
	if n < MinPhaseLength || n > MaxPhaseLength {
		return fmt.Errorf("%w: phase length must be between %d and %d days, got %d",
			ErrInvalidDesign, MinPhaseLength, MaxPhaseLength, n)
	}
	return nil
}

// Begin starts a fresh, active experiment from d. The returned state has no
// observations; whatever the caller held before is meant to be replaced.
func Begin(d Design) (State, error) {
	seq, err := BuildSequence(d.PhaseLengthDays)
	if err != nil {
		return State{}, err
	}

	return State{
		PhaseALabel:     d.PhaseALabel,
		PhaseBLabel:     d.PhaseBLabel,
		MetricLabel:     d.MetricLabel,
		StartDate:       d.StartDate,
		PhaseLengthDays: d.PhaseLengthDays,
		Sequence:        seq,
		Active:          true,
		Observations:    []Observation{},
	}, nil
}

func (s State) Status() Status {
	switch {
	case s.Active:
		return StatusActive
	case len(s.Sequence) == 0:
		return StatusUnconfigured
	default:
		return StatusClosed
	}
}

// DayOffset maps today onto an index into the sequence, clamped to the
// sequence bounds. ok is false when the experiment has no start date or no
// sequence.
func (s State) DayOffset(today Date) (offset int, ok bool) {
	if s.StartDate.IsZero() || len(s.Sequence) == 0 {
		return 0, false
	}

	offset = today.DaysSince(s.StartDate)
	if offset < 0 {
		offset = 0
	}
	if last := len(s.Sequence) - 1; offset > last {
		offset = last
	}
	return offset, true
}

// CurrentPhase returns the phase in effect on today. Past the end of the
// schedule the last phase sticks; before the start the first phase applies.
func CurrentPhase(s State, today Date) Phase {
	offset, ok := s.DayOffset(today)
	if !ok {
		return PhaseA
	}
	return s.Sequence[offset]
}

// AddObservation records value for date, tagged with the phase in effect on
// that date.
func (s *State) AddObservation(date Date, value float64) (Observation, error) {
	if !s.Active {
		return Observation{}, ErrInactiveExperiment
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Observation{}, fmt.Errorf("%w: value must be a finite number", ErrInvalidObservation)
	}

	obs := Observation{
		Date:  date,
		Phase: CurrentPhase(*s, date),
		Value: value,
	}
	s.Observations = append(s.Observations, obs)
	return obs, nil
}

// End closes the experiment. Observations stay readable until the next Begin.
func (s *State) End() {
	s.Active = false
}

func (s State) PhaseLabel(p Phase) string {
	if p == PhaseB {
		return s.PhaseBLabel
	}
	return s.PhaseALabel
}

func (s State) Schedule() []ScheduledDay {
	days := make([]ScheduledDay, len(s.Sequence))
	for i, p := range s.Sequence {
		day := ScheduledDay{Offset: i, Phase: p}
		if !s.StartDate.IsZero() {
			day.Date = s.StartDate.AddDays(i)
		}
		days[i] = day
	}
	return days
}
