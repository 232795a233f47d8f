package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portbilling/internal/clock"
	usagedomain "github.com/smallbiznis/portbilling/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  usagedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  usagedomain.Repository
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usage.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) RecordDeparture(ctx context.Context, req usagedomain.RecordDepartureRequest) (*usagedomain.UsageRecord, error) {
	customerCode := normalizeCode(req.CustomerCode)
	if customerCode == "" {
		return nil, usagedomain.ErrInvalidCustomer
	}
	vesselCode := normalizeCode(req.VesselCode)
	if vesselCode == "" {
		return nil, usagedomain.ErrInvalidVessel
	}
	currency := normalizeCode(req.Currency)
	if len(currency) != 3 {
		return nil, usagedomain.ErrInvalidCurrency
	}
	if req.DepartureAt.IsZero() {
		return nil, usagedomain.ErrInvalidDepartureAt
	}
	serviceType := normalizeCode(req.ServiceType)
	if serviceType == "" {
		serviceType = usagedomain.DefaultServiceType
	}

	now := s.clock.Now().UTC()
	record := &usagedomain.UsageRecord{
		ID:           s.genID.Generate(),
		CustomerCode: customerCode,
		VesselCode:   vesselCode,
		ServiceType:  serviceType,
		Status:       usagedomain.UsageStatusDeparted,
		DepartureAt:  req.DepartureAt.UTC(),
		UnitPrice:    req.UnitPrice,
		Currency:     currency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		return nil, err
	}

	s.log.Info("usage.departed",
		zap.String("usage_id", record.ID.String()),
		zap.String("customer_code", customerCode),
		zap.String("vessel_code", vesselCode),
	)
	return record, nil
}

// RecordReturn closes a voyage. A RETURNED record is never modified again.
func (s *Service) RecordReturn(ctx context.Context, req usagedomain.RecordReturnRequest) (*usagedomain.UsageRecord, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return nil, usagedomain.ErrUsageNotFound
	}
	if req.ReturnAt.IsZero() {
		return nil, usagedomain.ErrInvalidReturnAt
	}

	var record *usagedomain.UsageRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return usagedomain.ErrUsageNotFound
		}
		if existing.Status == usagedomain.UsageStatusReturned {
			return usagedomain.ErrAlreadyReturned
		}
		if req.ReturnAt.Before(existing.DepartureAt) {
			return usagedomain.ErrInvalidReturnAt
		}

		updated, err := s.repo.MarkReturned(ctx, tx, id, req.ReturnAt, s.clock.Now())
		if err != nil {
			return err
		}
		if !updated {
			return usagedomain.ErrAlreadyReturned
		}
		record, err = s.repo.FindByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("usage.returned",
		zap.String("usage_id", record.ID.String()),
		zap.String("customer_code", record.CustomerCode),
		zap.Time("return_at", req.ReturnAt.UTC()),
	)
	return record, nil
}

func (s *Service) ListReturned(ctx context.Context, customerCode string, from, to time.Time) ([]usagedomain.UsageRecord, error) {
	customerCode = normalizeCode(customerCode)
	if customerCode == "" {
		return nil, usagedomain.ErrInvalidCustomer
	}
	if !from.Before(to) {
		return nil, usagedomain.ErrInvalidRange
	}
	return s.repo.ListReturned(ctx, s.db, customerCode, from, to)
}

func (s *Service) ListCustomersWithReturned(ctx context.Context, from, to time.Time) ([]string, error) {
	if !from.Before(to) {
		return nil, usagedomain.ErrInvalidRange
	}
	return s.repo.ListCustomersWithReturned(ctx, s.db, from, to)
}

func normalizeCode(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
