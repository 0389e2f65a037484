package experiment

import "github.com/carecompanion/n1/internal/stats"

// Result compares the two phases. Delta is B minus A, signed.
type Result struct {
	MeanA float64       `json:"meanA"`
	MeanB float64       `json:"meanB"`
	Delta float64       `json:"delta"`
	A     stats.Summary `json:"a"`
	B     stats.Summary `json:"b"`
}

// AnalysisMessage explains why ComputeResult has nothing to report for s.
func (s State) AnalysisMessage() string {
	if len(s.Observations) == 0 {
		return "No observations to analyze."
	}
	return "Need at least one value in each phase."
}

// ComputeResult groups observations by phase and compares the means. It
// returns ErrAnalysisUnavailable when either phase has no observations.
func ComputeResult(observations []Observation) (Result, error) {
	var a, b []float64
	for _, o := range observations {
		switch o.Phase {
		case PhaseA:
			a = append(a, o.Value)
		case PhaseB:
			b = append(b, o.Value)
		}
	}

	if len(a) == 0 || len(b) == 0 {
		return Result{}, ErrAnalysisUnavailable
	}

	sa := stats.Summarize(a)
	sb := stats.Summarize(b)
	return Result{
		MeanA: sa.Mean,
		MeanB: sb.Mean,
		Delta: sb.Mean - sa.Mean,
		A:     sa,
		B:     sb,
	}, nil
}
