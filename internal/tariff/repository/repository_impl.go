package repository

import (
	"context"
	"time"

	tariffdomain "github.com/smallbiznis/portbilling/internal/tariff/domain"
	"github.com/smallbiznis/portbilling/pkg/db/option"
	"github.com/smallbiznis/portbilling/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	db          *gorm.DB
	tariffs     repository.Repository[tariffdomain.Tariff]
	assignments repository.Repository[tariffdomain.TariffAssignment]
}

func NewRepository(db *gorm.DB) tariffdomain.Repository {
	return &repo{
		db:          db,
		tariffs:     repository.ProvideStore[tariffdomain.Tariff](db),
		assignments: repository.ProvideStore[tariffdomain.TariffAssignment](db),
	}
}

func (r *repo) FindAssignment(ctx context.Context, vesselCode, serviceType string) (*tariffdomain.TariffAssignment, error) {
	var rows []tariffdomain.TariffAssignment
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, vessel_code, service_type, service_code, created_at, updated_at
		 FROM tariff_assignments
		 WHERE service_type = ? AND vessel_code IN (?, '')
		 ORDER BY vessel_code DESC
		 LIMIT 1`,
		serviceType,
		vesselCode,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) SaveAssignment(ctx context.Context, assignment *tariffdomain.TariffAssignment) error {
	return r.assignments.Upsert(ctx, assignment,
		[]string{"vessel_code", "service_type"},
		[]string{"service_code", "updated_at"},
	)
}

func (r *repo) FindEffective(ctx context.Context, serviceCode string, asOf time.Time) (*tariffdomain.Tariff, error) {
	return r.tariffs.FindOne(ctx, &tariffdomain.Tariff{ServiceCode: serviceCode},
		option.WithWhere("valid_from <= ?", asOf.UTC()),
		option.WithOrder("valid_from DESC"),
		option.WithOrder("id DESC"),
	)
}

func (r *repo) InsertTariff(ctx context.Context, tariff *tariffdomain.Tariff) error {
	return r.tariffs.Create(ctx, tariff)
}

func (r *repo) ListTariffs(ctx context.Context, serviceCode string) ([]tariffdomain.Tariff, error) {
	return r.tariffs.Find(ctx, &tariffdomain.Tariff{ServiceCode: serviceCode},
		option.WithOrder("service_code ASC"),
		option.WithOrder("valid_from ASC"),
	)
}
