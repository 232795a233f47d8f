package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	billingeventdomain "github.com/smallbiznis/portbilling/internal/billingevent/domain"
	"github.com/smallbiznis/portbilling/internal/clock"
	"github.com/smallbiznis/portbilling/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	relayResultPublished = "published"
	relayResultFailed    = "failed"
	maxErrorLength       = 512
)

type ServiceParam struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           billingeventdomain.Repository
	Publisher      billingeventdomain.Publisher
	Metrics        *metrics.Metrics        `optional:"true"`
	BillingMetrics *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           billingeventdomain.Repository
	publisher      billingeventdomain.Publisher
	metrics        *metrics.Metrics
	billingMetrics *metrics.BillingMetrics
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("billingevent.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		publisher:      p.Publisher,
		metrics:        p.Metrics,
		billingMetrics: p.BillingMetrics,
	}
}

func NewOutbox(s *Service) billingeventdomain.Outbox { return s }

func NewRelay(s *Service) billingeventdomain.Relay { return s }

// Enqueue writes the event in tx. A repeated dedupe key is a no-op.
func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, event billingeventdomain.Event) error {
	if strings.TrimSpace(event.Type) == "" || strings.TrimSpace(event.DedupeKey) == "" {
		return billingeventdomain.ErrInvalidEvent
	}
	if tx == nil {
		tx = s.db
	}

	row := &billingeventdomain.BillingEvent{
		ID:        s.genID.Generate(),
		EventType: event.Type,
		EventKey:  event.Key,
		Payload:   datatypes.JSONMap(event.Payload),
		DedupeKey: event.DedupeKey,
		CreatedAt: s.clock.Now().UTC(),
	}
	inserted, err := s.repo.Insert(ctx, tx, row)
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Debug("billing_event.duplicate", zap.String("dedupe_key", event.DedupeKey))
	}
	return nil
}

// RelayOnce publishes up to limit pending events in creation order. A failed
// publish keeps the row pending for the next pass.
func (s *Service) RelayOnce(ctx context.Context, limit int) (billingeventdomain.RelayResult, error) {
	if limit <= 0 {
		limit = 100
	}

	events, err := s.repo.ListPending(ctx, s.db, limit)
	if err != nil {
		return billingeventdomain.RelayResult{}, err
	}

	var result billingeventdomain.RelayResult
	var errs []error
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if err := s.publisher.Publish(ctx, event); err != nil {
			result.Failed++
			errs = append(errs, err)
			s.metrics.RecordEventRelayed(ctx, event.EventType, relayResultFailed)
			if markErr := s.repo.MarkFailed(ctx, s.db, event.ID, truncate(err.Error(), maxErrorLength)); markErr != nil {
				errs = append(errs, markErr)
			}
			s.log.Warn("billing_event.publish_failed",
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
			continue
		}

		if err := s.repo.MarkPublished(ctx, s.db, event.ID, s.clock.Now()); err != nil {
			errs = append(errs, err)
			continue
		}
		result.Published++
		s.metrics.RecordEventRelayed(ctx, event.EventType, relayResultPublished)
	}

	pending, err := s.repo.CountPending(ctx, s.db)
	if err != nil {
		errs = append(errs, err)
	} else {
		result.Pending = int(pending)
		if s.billingMetrics != nil {
			s.billingMetrics.SetOutboxPending(result.Pending)
		}
	}

	return result, errors.Join(errs...)
}

// truncate caps value at max bytes without splitting a UTF-8 sequence.
func truncate(value string, max int) string {
	value = strings.ToValidUTF8(value, "?")
	if len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
