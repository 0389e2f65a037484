// Package session owns one user's experiment for the length of an
// interaction: it loads the record, applies engine operations against an
// injected clock, and writes the record back.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/carecompanion/n1/internal/experiment"
	"github.com/carecompanion/n1/internal/logging"
	"github.com/carecompanion/n1/internal/store"
)

// ErrPersistence marks a failed load or save. The in-memory state is still
// valid when it is returned; callers should warn and carry on.
var ErrPersistence = errors.New("experiment could not be persisted")

type Session struct {
	userID string
	state  experiment.State
	store  store.Store
	clock  Clock
	logger *zap.Logger
}

type Option func(*Session)

// WithStore enables persistence. Without it the session is memory-only.
func WithStore(st store.Store) Option {
	return func(s *Session) {
		s.store = st
	}
}

func WithClock(c Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New returns a session with no experiment configured.
func New(userID string, opts ...Option) *Session {
	s := &Session{
		userID: userID,
		clock:  SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).With(zap.String("user_id", userID))
	return s
}

// Open loads the user's record. Missing or corrupt records leave the
// session unconfigured. A store failure is returned wrapped in
// ErrPersistence together with a usable, unconfigured session.
func Open(ctx context.Context, userID string, opts ...Option) (*Session, error) {
	s := New(userID, opts...)
	if s.store == nil {
		return s, nil
	}

	state, err := s.store.LoadState(ctx, userID)
	switch {
	case err == nil:
		s.state = state
	case errors.Is(err, store.ErrNotFound):
	case errors.Is(err, store.ErrCorruptState):
		s.logger.Warn("stored experiment is corrupt, starting unconfigured", zap.Error(err))
	default:
		s.logger.Warn("failed to load experiment", zap.Error(err))
		return s, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return s, nil
}

func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) Today() experiment.Date {
	return s.clock.Today()
}

// State returns a copy of the current record.
func (s *Session) State() experiment.State {
	st := s.state
	st.Sequence = slices.Clone(s.state.Sequence)
	st.Observations = slices.Clone(s.state.Observations)
	return st
}

func (s *Session) Status() experiment.Status {
	return s.state.Status()
}

func (s *Session) CurrentPhase() experiment.Phase {
	return experiment.CurrentPhase(s.state, s.clock.Today())
}

func (s *Session) DayOffset() (int, bool) {
	return s.state.DayOffset(s.clock.Today())
}

// Begin replaces whatever experiment the user had with a new active one.
// A zero StartDate means today.
func (s *Session) Begin(ctx context.Context, d experiment.Design) error {
	if d.StartDate.IsZero() {
		d.StartDate = s.clock.Today()
	}

	state, err := experiment.Begin(d)
	if err != nil {
		return err
	}

	if discarded := len(s.state.Observations); discarded > 0 {
		s.logger.Info("discarding previous experiment", zap.Int("observations", discarded))
	}
	s.state = state
	s.logger.Info("experiment started",
		zap.String("start", d.StartDate.String()),
		zap.Int("phase_length_days", d.PhaseLengthDays),
	)
	return s.save(ctx)
}

// Record adds an observation for today.
func (s *Session) Record(ctx context.Context, value float64) (experiment.Observation, error) {
	return s.RecordOn(ctx, s.clock.Today(), value)
}

func (s *Session) RecordOn(ctx context.Context, date experiment.Date, value float64) (experiment.Observation, error) {
	obs, err := s.state.AddObservation(date, value)
	if err != nil {
		return experiment.Observation{}, err
	}

	s.logger.Debug("observation recorded",
		zap.String("date", obs.Date.String()),
		zap.String("phase", string(obs.Phase)),
		zap.Float64("value", obs.Value),
	)
	return obs, s.save(ctx)
}

// End closes the experiment and analyzes it. The experiment is closed even
// when the analysis is unavailable; both that and a failed save can be
// reported at once.
func (s *Session) End(ctx context.Context) (experiment.Result, error) {
	s.state.End()
	saveErr := s.save(ctx)

	result, err := experiment.ComputeResult(s.state.Observations)
	if err != nil {
		return experiment.Result{}, errors.Join(err, saveErr)
	}

	s.logger.Info("experiment analyzed",
		zap.Float64("mean_a", result.MeanA),
		zap.Float64("mean_b", result.MeanB),
		zap.Float64("delta", result.Delta),
	)
	return result, saveErr
}

func (s *Session) Result() (experiment.Result, error) {
	return experiment.ComputeResult(s.state.Observations)
}

// Save writes the current record again, e.g. after an earlier failure.
func (s *Session) Save(ctx context.Context) error {
	return s.save(ctx)
}

func (s *Session) save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveState(ctx, s.userID, s.state); err != nil {
		s.logger.Warn("failed to save experiment", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}
