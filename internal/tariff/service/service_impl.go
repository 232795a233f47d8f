package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingcycledomain "github.com/smallbiznis/portbilling/internal/billingcycle/domain"
	"github.com/smallbiznis/portbilling/internal/cache"
	"github.com/smallbiznis/portbilling/internal/clock"
	tariffdomain "github.com/smallbiznis/portbilling/internal/tariff/domain"
	taxdomain "github.com/smallbiznis/portbilling/internal/tax/domain"
	"github.com/smallbiznis/portbilling/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	assignmentCacheTTL = 5 * time.Minute
	tariffCacheTTL     = 5 * time.Minute
)

type Params struct {
	fx.In

	Repository  tariffdomain.Repository
	VatResolver taxdomain.Resolver
	GenID       *snowflake.Node
	Clock       clock.Clock
	Log         *zap.Logger
}

type Service struct {
	repo        tariffdomain.Repository
	vat         taxdomain.Resolver
	genID       *snowflake.Node
	clock       clock.Clock
	log         *zap.Logger
	assignments cache.Cache[string, string]
	tariffs     cache.Cache[string, tariffdomain.Tariff]
}

func NewService(p Params) *Service {
	return &Service{
		repo:        p.Repository,
		vat:         p.VatResolver,
		genID:       p.GenID,
		clock:       p.Clock,
		log:         p.Log.Named("tariff.service"),
		assignments: cache.NewTTLCache[string, string](),
		tariffs:     cache.NewTTLCache[string, tariffdomain.Tariff](),
	}
}

func NewResolver(s *Service) tariffdomain.Resolver { return s }

func NewManagement(s *Service) tariffdomain.Service { return s }

func (s *Service) ServiceCodeFor(ctx context.Context, vesselCode, serviceType string) (string, error) {
	vesselCode = normalize(vesselCode)
	serviceType = normalize(serviceType)
	if serviceType == "" {
		return "", tariffdomain.ErrInvalidServiceType
	}

	key := vesselCode + "|" + serviceType
	if code, ok := s.assignments.Get(key); ok {
		return code, nil
	}

	assignment, err := s.repo.FindAssignment(ctx, vesselCode, serviceType)
	if err != nil {
		return "", err
	}
	if assignment == nil {
		return "", fmt.Errorf("%w: no assignment for vessel %q service %q", tariffdomain.ErrTariffNotFound, vesselCode, serviceType)
	}
	s.assignments.Set(key, assignment.ServiceCode, assignmentCacheTTL)
	return assignment.ServiceCode, nil
}

// TariffAt returns the latest tariff version valid on asOf with its VAT rate.
// Only the tariff row is cached here; the VAT rate always comes from the tax
// resolver, which drops its entry when a code is saved.
func (s *Service) TariffAt(ctx context.Context, serviceCode string, asOf time.Time) (tariffdomain.Quote, error) {
	serviceCode = normalize(serviceCode)
	if serviceCode == "" {
		return tariffdomain.Quote{}, tariffdomain.ErrInvalidServiceCode
	}
	if asOf.IsZero() {
		return tariffdomain.Quote{}, billingcycledomain.ErrInvalidDate
	}

	tariff, err := s.effectiveTariff(ctx, serviceCode, asOf)
	if err != nil {
		return tariffdomain.Quote{}, err
	}

	vat, err := s.vat.Resolve(ctx, tariff.VatCode)
	if err != nil {
		return tariffdomain.Quote{}, fmt.Errorf("%w: %w", tariffdomain.ErrTariffNotFound, err)
	}

	quote := tariffdomain.Quote{
		TariffID:    tariff.ID,
		ServiceCode: tariff.ServiceCode,
		Description: tariff.Description,
		UnitPrice:   tariff.UnitPrice,
		Currency:    tariff.Currency,
		VatCode:     vat.Code,
		VatRate:     vat.RatePercent,
		ValidFrom:   tariff.ValidFrom,
	}
	return quote, nil
}

func (s *Service) effectiveTariff(ctx context.Context, serviceCode string, asOf time.Time) (tariffdomain.Tariff, error) {
	key := serviceCode + "|" + billingcycledomain.FormatDate(asOf)
	if tariff, ok := s.tariffs.Get(key); ok {
		return tariff, nil
	}

	tariff, err := s.repo.FindEffective(ctx, serviceCode, asOf)
	if err != nil {
		return tariffdomain.Tariff{}, err
	}
	if tariff == nil {
		return tariffdomain.Tariff{}, fmt.Errorf("%w: %s on %s", tariffdomain.ErrTariffNotFound, serviceCode, billingcycledomain.FormatDate(asOf))
	}
	s.tariffs.Set(key, *tariff, tariffCacheTTL)
	return *tariff, nil
}

func (s *Service) CreateTariff(ctx context.Context, req tariffdomain.CreateTariffRequest) (*tariffdomain.Tariff, error) {
	serviceCode := normalize(req.ServiceCode)
	if serviceCode == "" {
		return nil, tariffdomain.ErrInvalidServiceCode
	}
	if req.UnitPrice.IsNegative() {
		return nil, tariffdomain.ErrInvalidUnitPrice
	}
	currency, err := money.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	vatCode := normalize(req.VatCode)
	if vatCode == "" {
		return nil, tariffdomain.ErrInvalidVatCode
	}
	if _, err := s.vat.Resolve(ctx, vatCode); err != nil {
		return nil, err
	}
	validFrom, err := billingcycledomain.ParseDate(req.ValidFrom)
	if err != nil {
		return nil, tariffdomain.ErrInvalidValidFrom
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = serviceCode
	}
	tariff := &tariffdomain.Tariff{
		ID:          s.genID.Generate(),
		ServiceCode: serviceCode,
		Description: description,
		UnitPrice:   req.UnitPrice,
		Currency:    currency,
		VatCode:     vatCode,
		ValidFrom:   validFrom,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if err := s.repo.InsertTariff(ctx, tariff); err != nil {
		return nil, err
	}
	s.tariffs.Purge()

	s.log.Info("tariff.created",
		zap.String("service_code", serviceCode),
		zap.String("unit_price", tariff.UnitPrice.String()),
		zap.String("currency", currency),
		zap.String("valid_from", req.ValidFrom),
	)
	return tariff, nil
}

func (s *Service) Assign(ctx context.Context, req tariffdomain.AssignRequest) (*tariffdomain.TariffAssignment, error) {
	serviceType := normalize(req.ServiceType)
	if serviceType == "" {
		return nil, tariffdomain.ErrInvalidServiceType
	}
	serviceCode := normalize(req.ServiceCode)
	if serviceCode == "" {
		return nil, tariffdomain.ErrInvalidServiceCode
	}

	now := s.clock.Now().UTC()
	assignment := &tariffdomain.TariffAssignment{
		ID:          s.genID.Generate(),
		VesselCode:  normalize(req.VesselCode),
		ServiceType: serviceType,
		ServiceCode: serviceCode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.SaveAssignment(ctx, assignment); err != nil {
		return nil, err
	}
	s.assignments.Purge()
	return assignment, nil
}

func (s *Service) ListTariffs(ctx context.Context, serviceCode string) ([]tariffdomain.Tariff, error) {
	return s.repo.ListTariffs(ctx, normalize(serviceCode))
}

func normalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
