package service

import (
	"context"
	"time"

	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
	"github.com/smallbiznis/portbilling/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Holder *config.BillingConfigHolder
	Log    *zap.Logger
}

type Service struct {
	holder *config.BillingConfigHolder
	log    *zap.Logger
}

func NewService(p Params) billingcycledomain.Service {
	return &Service{
		holder: p.Holder,
		log:    p.Log.Named("billingcycle.service"),
	}
}

// CalendarFor builds the calendar described by a billing policy snapshot.
func CalendarFor(cfg config.BillingConfig) (*billingcycledomain.Calendar, error) {
	return billingcycledomain.NewCalendar(cfg.CutoffDays, cfg.Location())
}

func (s *Service) Calendar() (*billingcycledomain.Calendar, error) {
	return CalendarFor(s.holder.Get())
}

func (s *Service) PeriodFor(ctx context.Context, date time.Time) (billingcycledomain.BillingPeriod, error) {
	cal, err := s.Calendar()
	if err != nil {
		return billingcycledomain.BillingPeriod{}, err
	}
	return cal.PeriodFor(date)
}

func (s *Service) PeriodsInMonth(ctx context.Context, year int, month time.Month) ([]billingcycledomain.BillingPeriod, error) {
	cal, err := s.Calendar()
	if err != nil {
		return nil, err
	}
	return cal.PeriodsInMonth(year, month), nil
}
