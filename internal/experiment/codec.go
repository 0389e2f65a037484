package experiment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

func Encode(s State) ([]byte, error) {
	if s.Sequence == nil {
		s.Sequence = []Phase{}
	}
	if s.Observations == nil {
		s.Observations = []Observation{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal experiment state: %w", err)
	}
	return data, nil
}

// Decode parses a stored record. Anything that does not match the record
// shape yields ErrMalformedState and the zero (unconfigured) State.
func Decode(data []byte) (State, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return State{}, fmt.Errorf("%w: empty record", ErrMalformedState)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if err := s.validate(); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	return s, nil
}

func (s State) validate() error {
	for i, o := range s.Observations {
		if !o.Phase.Valid() {
			return fmt.Errorf("observation %d has no phase", i)
		}
		if o.Date.IsZero() {
			return fmt.Errorf("observation %d has no date", i)
		}
	}

	if len(s.Sequence) == 0 {
		if s.Active {
			return fmt.Errorf("active experiment has no sequence")
		}
		return nil
	}

	want, err := BuildSequence(s.PhaseLengthDays)
	if err != nil {
		return err
	}
	if !slices.Equal(s.Sequence, want) {
		return fmt.Errorf("sequence does not match phase length %d", s.PhaseLengthDays)
	}
	return nil
}
