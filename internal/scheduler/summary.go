package scheduler

import (
	"errors"
	"fmt"
	"time"

	exchangeratedomain "github.com/smallbiznis/portbilling/internal/exchangerate/domain"
	invoicedomain "github.com/smallbiznis/portbilling/internal/invoice/domain"
	"github.com/smallbiznis/portbilling/internal/keylock"
	obsmetrics "github.com/smallbiznis/portbilling/internal/observability/metrics"
	tariffdomain "github.com/smallbiznis/portbilling/internal/tariff/domain"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// KeyFailure is one customer and period that could not be billed.
// An empty CustomerCode means the period could not be enumerated.
type KeyFailure struct {
	CustomerCode string `json:"customer_code,omitempty"`
	Period       string `json:"period"`
	Reason       string `json:"reason"`
	Error        string `json:"error"`

	err error
}

// RunSummary reports a billing run. Failures never abort sibling keys.
type RunSummary struct {
	RunID       string       `json:"run_id"`
	Trigger     string       `json:"trigger"`
	AsOf        time.Time    `json:"as_of"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Periods     []string     `json:"periods"`
	Keys        int          `json:"keys"`
	Created     int          `json:"created"`
	Regenerated int          `json:"regenerated"`
	Unchanged   int          `json:"unchanged"`
	Conflicts   int          `json:"conflicts"`
	Skipped     int          `json:"skipped"`
	Failures    []KeyFailure `json:"failures"`
}

func (s *RunSummary) Failed() int { return len(s.Failures) }

// Outcome classifies the run for metrics.
func (s *RunSummary) Outcome() string {
	switch {
	case len(s.Failures) == 0:
		return obsmetrics.RunOutcomeSuccess
	case len(s.Failures) < s.Keys:
		return obsmetrics.RunOutcomePartial
	default:
		return obsmetrics.RunOutcomeFailed
	}
}

// Err joins every key failure, or returns nil.
func (s *RunSummary) Err() error {
	var err error
	for _, failure := range s.Failures {
		err = errors.Join(err, failure.err)
	}
	return err
}

func (s *RunSummary) record(outcome invoicedomain.ReconcileOutcome) {
	switch outcome {
	case invoicedomain.OutcomeCreated:
		s.Created++
	case invoicedomain.OutcomeRegenerated:
		s.Regenerated++
	case invoicedomain.OutcomeUnchanged:
		s.Unchanged++
	case invoicedomain.OutcomeConflict:
		s.Conflicts++
	}
}

func (s *RunSummary) fail(customerCode, period string, err error) KeyFailure {
	failure := KeyFailure{
		CustomerCode: customerCode,
		Period:       period,
		Reason:       failureReason(err),
		Error:        err.Error(),
		err:          fmt.Errorf("%s %s: %w", customerCode, period, err),
	}
	s.Failures = append(s.Failures, failure)
	return failure
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, exchangeratedomain.ErrRateUnavailable):
		return obsmetrics.ReasonRateUnavailable
	case errors.Is(err, tariffdomain.ErrTariffNotFound):
		return obsmetrics.ReasonTariffNotFound
	case errors.Is(err, keylock.ErrLockBusy):
		return obsmetrics.ReasonLockBusy
	case errors.Is(err, invoicedomain.ErrConcurrentModification):
		return obsmetrics.ReasonVersionConflict
	default:
		return obsmetrics.ClassifyStorageReason(err)
	}
}
