// Package export writes an experiment's observations as CSV, JSON or YAML.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/carecompanion/n1/internal/experiment"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON, FormatYAML:
		return Format(s), nil
	}
	return "", fmt.Errorf("invalid format %q: must be 'csv', 'json' or 'yaml'", s)
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	default:
		return "text/csv"
	}
}

type document struct {
	PhaseA       string        `json:"phase_a" yaml:"phase_a"`
	PhaseB       string        `json:"phase_b" yaml:"phase_b"`
	Metric       string        `json:"metric" yaml:"metric"`
	StartDate    string        `json:"start_date" yaml:"start_date"`
	PhaseLength  int           `json:"phase_length_days" yaml:"phase_length_days"`
	Active       bool          `json:"active" yaml:"active"`
	Observations []observation `json:"observations" yaml:"observations"`
}

type observation struct {
	Date  string  `json:"date" yaml:"date"`
	Phase string  `json:"phase" yaml:"phase"`
	Value float64 `json:"value" yaml:"value"`
}

func Write(w io.Writer, format Format, state experiment.State) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, state.Observations)
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(newDocument(state))
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(newDocument(state)); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return encoder.Close()
	}
	return fmt.Errorf("unsupported format %q", format)
}

func writeCSV(out io.Writer, observations []experiment.Observation) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"date", "phase", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, o := range observations {
		row := []string{
			o.Date.String(),
			string(o.Phase),
			strconv.FormatFloat(o.Value, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

func newDocument(state experiment.State) document {
	doc := document{
		PhaseA:       state.PhaseALabel,
		PhaseB:       state.PhaseBLabel,
		Metric:       state.MetricLabel,
		StartDate:    state.StartDate.String(),
		PhaseLength:  state.PhaseLengthDays,
		Active:       state.Active,
		Observations: make([]observation, len(state.Observations)),
	}
	for i, o := range state.Observations {
		doc.Observations[i] = observation{
			Date:  o.Date.String(),
			Phase: string(o.Phase),
			Value: o.Value,
		}
	}
	return doc
}
