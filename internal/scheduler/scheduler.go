package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
	billingcycleservice "github.com/smallbiznis/portbilling/internal/billingcycle/service"
	billingeventdomain "github.com/smallbiznis/portbilling/internal/billingevent/domain"
	"github.com/smallbiznis/portbilling/internal/clock"
	"github.com/smallbiznis/portbilling/internal/config"
	exchangeratedomain "github.com/smallbiznis/portbilling/internal/exchangerate/domain"
	invoicedomain "github.com/smallbiznis/portbilling/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/portbilling/internal/observability/metrics"
	ratingdomain "github.com/smallbiznis/portbilling/internal/rating/domain"
	usagedomain "github.com/smallbiznis/portbilling/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const (
	jobBilling = "billing"
	jobRelay   = "relay_outbox"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Holder   *config.BillingConfigHolder
	Usage    usagedomain.Service
	Rating   ratingdomain.Service
	Invoices invoicedomain.Service
	Relay    billingeventdomain.Relay
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   Config                     `optional:"true"`
	Metrics  *obsmetrics.BillingMetrics `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	holder   *config.BillingConfigHolder
	usage    usagedomain.Service
	rating   ratingdomain.Service
	invoices invoicedomain.Service
	relay    billingeventdomain.Relay
	genID    *snowflake.Node
	clock    clock.Clock
	metrics  *obsmetrics.BillingMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Holder == nil || p.Usage == nil || p.Rating == nil || p.Invoices == nil || p.Relay == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		holder:   p.Holder,
		usage:    p.Usage,
		rating:   p.Rating,
		invoices: p.Invoices,
		relay:    p.Relay,
		genID:    p.GenID,
		clock:    p.Clock,
		metrics:  p.Metrics,
	}, nil
}

// billingKey identifies one invoice: a customer in a closed period.
type billingKey struct {
	customerCode string
	period       billingcycledomain.BillingPeriod
}

// runPlan is everything a run needs, fixed at its start.
type runPlan struct {
	cfg      config.BillingConfig
	calendar *billingcycledomain.Calendar
	policy   exchangeratedomain.Policy
}

func (s *Scheduler) snapshot() (runPlan, error) {
	cfg := s.holder.Get()
	calendar, err := billingcycleservice.CalendarFor(cfg)
	if err != nil {
		return runPlan{}, err
	}
	return runPlan{
		cfg:      cfg,
		calendar: calendar,
		policy: exchangeratedomain.Policy{
			MaxFallbackDays: cfg.RateFallbackMaxDays,
			LookupTimeout:   cfg.RateLookupTimeout,
		},
	}, nil
}

// RunBilling bills every customer with returned usage in each period closed
// before asOf and within the regeneration lookback.
func (s *Scheduler) RunBilling(ctx context.Context, asOf time.Time) (*RunSummary, error) {
	return s.runBilling(ctx, TriggerManual, asOf)
}

func (s *Scheduler) runBilling(ctx context.Context, trigger string, asOf time.Time) (*RunSummary, error) {
	if asOf.IsZero() {
		return nil, billingcycledomain.ErrInvalidDate
	}
	plan, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	ctx, run, _ := s.ensureJobRun(ctx, jobBilling)
	summary := &RunSummary{
		RunID:     run.runID,
		Trigger:   trigger,
		AsOf:      asOf.UTC(),
		StartedAt: s.clock.Now().UTC(),
	}
	log := s.logger(ctx)

	periods, err := closedPeriods(plan.calendar, plan.calendar.DateOf(asOf), plan.cfg.RegenerationLookbackDays)
	if err != nil {
		return nil, err
	}
	log.Info("billing.run.start",
		zap.String("trigger", trigger),
		zap.Time("as_of", summary.AsOf),
		zap.Int("periods", len(periods)),
		zap.Int("concurrency", plan.cfg.BatchConcurrency),
	)

	var keys []billingKey
	for _, period := range periods {
		summary.Periods = append(summary.Periods, period.Key())
		from, to := plan.calendar.Range(period)
		customers, err := s.usage.ListCustomersWithReturned(ctx, from, to)
		if err != nil {
			failure := summary.fail("", period.Key(), err)
			s.observeFailure(ctx, run, failure)
			continue
		}
		for _, customer := range customers {
			keys = append(keys, billingKey{customerCode: customer, period: period})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].period.StartDate.Equal(keys[j].period.StartDate) {
			return keys[i].period.StartDate.Before(keys[j].period.StartDate)
		}
		return keys[i].customerCode < keys[j].customerCode
	})
	summary.Keys = len(keys)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(maxInt(plan.cfg.BatchConcurrency, 1))
	for _, key := range keys {
		g.Go(func() error {
			result, err := s.billKey(ctx, plan, key)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ratingdomain.ErrNoBillableUsage):
				summary.Skipped++
			case errors.Is(err, invoicedomain.ErrLockedInvoiceConflict):
				summary.record(invoicedomain.OutcomeConflict)
			case err != nil:
				failure := summary.fail(key.customerCode, key.period.Key(), err)
				s.observeFailure(ctx, run, failure)
			default:
				summary.record(result.Outcome)
			}
			run.AddProcessed(1)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(summary.Failures, func(i, j int) bool {
		if summary.Failures[i].Period != summary.Failures[j].Period {
			return summary.Failures[i].Period < summary.Failures[j].Period
		}
		return summary.Failures[i].CustomerCode < summary.Failures[j].CustomerCode
	})
	summary.FinishedAt = s.clock.Now().UTC()
	if s.metrics != nil {
		s.metrics.ObserveRun(trigger, summary.Outcome(), summary.FinishedAt.Sub(summary.StartedAt))
	}

	fields := []zap.Field{
		zap.String("trigger", trigger),
		zap.String("outcome", summary.Outcome()),
		zap.Int("keys", summary.Keys),
		zap.Int("created", summary.Created),
		zap.Int("regenerated", summary.Regenerated),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("conflicts", summary.Conflicts),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed()),
		zap.Int64("duration_ms", summary.FinishedAt.Sub(summary.StartedAt).Milliseconds()),
	}
	if summary.Failed() > 0 {
		log.Warn("billing.run.finish", fields...)
	} else {
		log.Info("billing.run.finish", fields...)
	}
	return summary, nil
}

// BillCustomer aggregates and reconciles the period containing date for one
// customer. The period does not need to be closed.
func (s *Scheduler) BillCustomer(ctx context.Context, customerCode string, date time.Time) (invoicedomain.ReconcileResult, error) {
	customerCode = strings.ToUpper(strings.TrimSpace(customerCode))
	if customerCode == "" {
		return invoicedomain.ReconcileResult{}, ratingdomain.ErrInvalidCustomer
	}
	if date.IsZero() {
		return invoicedomain.ReconcileResult{}, billingcycledomain.ErrInvalidDate
	}
	plan, err := s.snapshot()
	if err != nil {
		return invoicedomain.ReconcileResult{}, err
	}
	period, err := plan.calendar.PeriodFor(date)
	if err != nil {
		return invoicedomain.ReconcileResult{}, err
	}
	return s.billKey(ctx, plan, billingKey{customerCode: customerCode, period: period})
}

func (s *Scheduler) billKey(ctx context.Context, plan runPlan, key billingKey) (invoicedomain.ReconcileResult, error) {
	draft, err := s.rating.Aggregate(ctx, ratingdomain.AggregateRequest{
		CustomerCode:       key.customerCode,
		Period:             key.period,
		Calendar:           plan.calendar,
		SettlementCurrency: plan.cfg.SettlementCurrency,
		RatePolicy:         &plan.policy,
	})
	if err != nil {
		return invoicedomain.ReconcileResult{}, err
	}
	return s.invoices.Reconcile(ctx, draft)
}

// RelayOutbox publishes one batch of pending billing events.
func (s *Scheduler) RelayOutbox(ctx context.Context) (billingeventdomain.RelayResult, error) {
	ctx, run, _ := s.ensureJobRun(ctx, jobRelay)
	result, err := s.relay.RelayOnce(ctx, s.cfg.RelayBatchSize)
	run.AddProcessed(result.Published)
	if err != nil {
		s.logger(ctx).Warn("scheduler.relay.failed",
			zap.Int("published", result.Published),
			zap.Int("failed", result.Failed),
			zap.Int("pending", result.Pending),
			zap.Error(err),
		)
	}
	return result, err
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	err := fn(ctx)
	if owner {
		if err != nil && run.Errors() == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick resumes the work.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{jobBilling, func(ctx context.Context) error {
			summary, err := s.runBilling(ctx, TriggerScheduled, s.clock.Now())
			if err != nil {
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if summary.Failed() > 0 {
				s.logger(ctx).Warn("billing.run.failures", zap.Error(summary.Err()))
			}
			return nil
		}},
		{jobRelay, func(ctx context.Context) error {
			_, err := s.RelayOutbox(ctx)
			return err
		}},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty means all jobs
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// closedPeriods returns the periods that ended before asOf and end within the
// lookback window, oldest first.
func closedPeriods(calendar *billingcycledomain.Calendar, asOf time.Time, lookbackDays int) ([]billingcycledomain.BillingPeriod, error) {
	if lookbackDays < 0 {
		lookbackDays = 0
	}
	lastClosed := asOf.AddDate(0, 0, -1)
	from := asOf.AddDate(0, 0, -lookbackDays)
	if from.After(lastClosed) {
		return nil, nil
	}
	candidates, err := calendar.PeriodsBetween(from, lastClosed)
	if err != nil {
		return nil, err
	}
	periods := candidates[:0]
	for _, period := range candidates {
		if period.EndDate.Before(asOf) && !period.EndDate.Before(from) {
			periods = append(periods, period)
		}
	}
	return periods, nil
}

func maxInt(values ...int) int {
	out := 0
	for _, v := range values {
		if v > out {
			out = v
		}
	}
	return out
}
