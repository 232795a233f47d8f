package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
	"github.com/smallbiznis/portbilling/internal/config"
	exchangeratedomain "github.com/smallbiznis/portbilling/internal/exchangerate/domain"
	invoicedomain "github.com/smallbiznis/portbilling/internal/invoice/domain"
	"github.com/smallbiznis/portbilling/internal/observability/tracing"
	ratingdomain "github.com/smallbiznis/portbilling/internal/rating/domain"
	tariffdomain "github.com/smallbiznis/portbilling/internal/tariff/domain"
	usagedomain "github.com/smallbiznis/portbilling/internal/usage/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log       *zap.Logger
	Holder    *config.BillingConfigHolder
	Calendars billingcycledomain.Service
	Usage     usagedomain.Service
	Tariffs   tariffdomain.Resolver
	Rates     exchangeratedomain.Resolver
}

type Service struct {
	log       *zap.Logger
	holder    *config.BillingConfigHolder
	calendars billingcycledomain.Service
	usage     usagedomain.Service
	tariffs   tariffdomain.Resolver
	rates     exchangeratedomain.Resolver
}

func NewService(p ServiceParam) ratingdomain.Service {
	return &Service{
		log:       p.Log.Named("rating.service"),
		holder:    p.Holder,
		calendars: p.Calendars,
		usage:     p.Usage,
		tariffs:   p.Tariffs,
		rates:     p.Rates,
	}
}

type usageGroup struct {
	serviceCode string
	quantity    int64
}

func (s *Service) Aggregate(ctx context.Context, req ratingdomain.AggregateRequest) (invoicedomain.Draft, error) {
	customerCode := strings.ToUpper(strings.TrimSpace(req.CustomerCode))
	if customerCode == "" {
		return invoicedomain.Draft{}, ratingdomain.ErrInvalidCustomer
	}
	if req.Period.IsZero() {
		return invoicedomain.Draft{}, ratingdomain.ErrInvalidPeriod
	}

	calendar := req.Calendar
	if calendar == nil {
		cal, err := s.calendars.Calendar()
		if err != nil {
			return invoicedomain.Draft{}, err
		}
		calendar = cal
	}
	settlement := strings.ToUpper(strings.TrimSpace(req.SettlementCurrency))
	if settlement == "" {
		settlement = s.holder.Get().SettlementCurrency
	}

	ctx, span := tracing.StartSpan(ctx, "rating.aggregate",
		attribute.String("customer_code", customerCode),
		attribute.String("period", req.Period.Key()),
	)
	defer span.End()

	from, to := calendar.Range(req.Period)
	records, err := s.usage.ListReturned(ctx, customerCode, from, to)
	if err != nil {
		return invoicedomain.Draft{}, s.fail(span, err)
	}

	groups, err := s.groupByServiceCode(ctx, records)
	if err != nil {
		return invoicedomain.Draft{}, s.fail(span, fmt.Errorf("customer %s period %s: %w", customerCode, req.Period.Key(), err))
	}
	if len(groups) == 0 {
		return invoicedomain.Draft{}, ratingdomain.ErrNoBillableUsage
	}

	var rateOpts []exchangeratedomain.Option
	if req.RatePolicy != nil {
		rateOpts = append(rateOpts, exchangeratedomain.WithPolicy(*req.RatePolicy))
	}

	lines := make([]invoicedomain.DraftLine, 0, len(groups))
	for _, group := range groups {
		line, err := s.priceGroup(ctx, group, req.Period, settlement, rateOpts)
		if err != nil {
			return invoicedomain.Draft{}, s.fail(span, fmt.Errorf("customer %s period %s service %s: %w", customerCode, req.Period.Key(), group.serviceCode, err))
		}
		lines = append(lines, line)
	}

	draft := invoicedomain.NewDraft(customerCode, req.Period, settlement, lines)
	span.SetAttributes(attribute.Int("lines", len(draft.Lines)), attribute.Int("records", len(records)))

	s.log.Debug("rating.aggregated",
		zap.String("customer_code", customerCode),
		zap.String("period", req.Period.Key()),
		zap.Int("records", len(records)),
		zap.Int("lines", len(draft.Lines)),
		zap.String("grand_total", draft.GrandTotal.StringFixed(2)),
	)
	return draft, nil
}

// groupByServiceCode counts billable records per service code, ordered by code.
func (s *Service) groupByServiceCode(ctx context.Context, records []usagedomain.UsageRecord) ([]usageGroup, error) {
	codes := make(map[string]string)
	counts := make(map[string]int64)
	for _, record := range records {
		if !record.Billable() {
			continue
		}
		key := record.VesselCode + "|" + record.ServiceType
		serviceCode, ok := codes[key]
		if !ok {
			code, err := s.tariffs.ServiceCodeFor(ctx, record.VesselCode, record.ServiceType)
			if err != nil {
				return nil, err
			}
			codes[key] = code
			serviceCode = code
		}
		counts[serviceCode]++
	}

	groups := make([]usageGroup, 0, len(counts))
	for code, quantity := range counts {
		groups = append(groups, usageGroup{serviceCode: code, quantity: quantity})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].serviceCode < groups[j].serviceCode
	})
	return groups, nil
}

// priceGroup uses the tariff valid at the period start and converts it with
// the rate of the period end date.
func (s *Service) priceGroup(ctx context.Context, group usageGroup, period billingcycledomain.BillingPeriod, settlement string, rateOpts []exchangeratedomain.Option) (invoicedomain.DraftLine, error) {
	quote, err := s.tariffs.TariffAt(ctx, group.serviceCode, period.StartDate)
	if err != nil {
		return invoicedomain.DraftLine{}, err
	}

	unitPrice := quote.UnitPrice
	rate := decimal.NewFromInt(1)
	rateDate := period.EndDate
	fallback := false
	if quote.Currency != settlement {
		resolution, err := s.rates.RateOn(ctx, period.EndDate, quote.Currency, settlement, rateOpts...)
		if err != nil {
			return invoicedomain.DraftLine{}, err
		}
		unitPrice = resolution.Convert(quote.UnitPrice)
		rate = resolution.Rate
		rateDate = resolution.ResolvedDate
		fallback = resolution.IsFallback
	}

	return invoicedomain.DraftLine{
		ServiceCode:    quote.ServiceCode,
		Description:    quote.Description,
		Quantity:       group.quantity,
		UnitPrice:      unitPrice,
		VatCode:        quote.VatCode,
		VatRate:        quote.VatRate,
		TariffCurrency: quote.Currency,
		ExchangeRate:   rate,
		RateDate:       rateDate,
		RateIsFallback: fallback,
	}, nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(tracing.SafeError(err))
	span.SetStatus(codes.Error, "aggregate")
	return err
}
