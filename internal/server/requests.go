package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/carecompanion/n1/internal/experiment"
)

var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
}

// BeginRequest configures and starts a new experiment.
type BeginRequest struct {
	Name            string `json:"name" validate:"max=80"`
	PhaseALabel     string `json:"phaseALabel" validate:"max=120"`
	PhaseBLabel     string `json:"phaseBLabel" validate:"max=120"`
	MetricLabel     string `json:"metricLabel" validate:"max=120"`
	StartDate       string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	PhaseLengthDays int    `json:"phaseLengthDays" validate:"min=3,max=14"`
}

func (r *BeginRequest) Validate() error {
	return describeValidation(requestValidate.Struct(r))
}

// Design converts the request. An empty start date stays zero so the
// session substitutes today.
func (r *BeginRequest) Design() (experiment.Design, error) {
	d := experiment.Design{
		PhaseALabel:     strings.TrimSpace(r.PhaseALabel),
		PhaseBLabel:     strings.TrimSpace(r.PhaseBLabel),
		MetricLabel:     strings.TrimSpace(r.MetricLabel),
		PhaseLengthDays: r.PhaseLengthDays,
	}
	if r.StartDate != "" {
		start, err := experiment.ParseDate(r.StartDate)
		if err != nil {
			return experiment.Design{}, err
		}
		d.StartDate = start
	}
	return d, nil
}

// ObservationRequest records one value. Date defaults to today. The value
// bounds mirror experiment.MinObservationValue and MaxObservationValue.
type ObservationRequest struct {
	Value *float64 `json:"value" validate:"required,gte=0,lte=400"`
	Date  string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (r *ObservationRequest) Validate() error {
	return describeValidation(requestValidate.Struct(r))
}

func describeValidation(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("%s must be a YYYY-MM-DD date", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
