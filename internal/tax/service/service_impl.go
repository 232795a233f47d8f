package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/portbilling/internal/cache"
	"github.com/smallbiznis/portbilling/internal/clock"
	taxdomain "github.com/smallbiznis/portbilling/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const vatCacheTTL = 10 * time.Minute

var maxVatRate = decimal.NewFromInt(100)

type Params struct {
	fx.In

	Repository taxdomain.Repository
	Clock      clock.Clock
	Log        *zap.Logger
}

type Service struct {
	repo  taxdomain.Repository
	clock clock.Clock
	log   *zap.Logger
	cache cache.Cache[string, taxdomain.VatCode]
}

func NewService(p Params) *Service {
	return &Service{
		repo:  p.Repository,
		clock: p.Clock,
		log:   p.Log.Named("tax.service"),
		cache: cache.NewTTLCache[string, taxdomain.VatCode](),
	}
}

func NewResolver(s *Service) taxdomain.Resolver { return s }

func NewManagement(s *Service) taxdomain.Service { return s }

func (s *Service) Resolve(ctx context.Context, code string) (taxdomain.VatCode, error) {
	code = normalizeCode(code)
	if code == "" {
		return taxdomain.VatCode{}, taxdomain.ErrInvalidVatCode
	}
	if cached, ok := s.cache.Get(code); ok {
		return cached, nil
	}

	vat, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return taxdomain.VatCode{}, err
	}
	if vat == nil {
		return taxdomain.VatCode{}, fmt.Errorf("%w: %s", taxdomain.ErrVatCodeNotFound, code)
	}
	s.cache.Set(code, *vat, vatCacheTTL)
	return *vat, nil
}

func (s *Service) Upsert(ctx context.Context, req taxdomain.UpsertRequest) (*taxdomain.VatCode, error) {
	code := normalizeCode(req.Code)
	if code == "" {
		return nil, taxdomain.ErrInvalidVatCode
	}
	if req.RatePercent.IsNegative() || req.RatePercent.GreaterThan(maxVatRate) {
		return nil, taxdomain.ErrInvalidVatRate
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = code
	}

	now := s.clock.Now().UTC()
	vat := &taxdomain.VatCode{
		Code:        code,
		Name:        name,
		RatePercent: req.RatePercent,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Save(ctx, vat); err != nil {
		return nil, err
	}
	s.cache.Delete(code)

	s.log.Info("tax.vat_code.saved",
		zap.String("code", code),
		zap.String("rate_percent", req.RatePercent.String()),
	)
	return vat, nil
}

func (s *Service) List(ctx context.Context) ([]taxdomain.VatCode, error) {
	return s.repo.List(ctx)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
