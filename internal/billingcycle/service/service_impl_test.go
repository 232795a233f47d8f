package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/portbilling/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServiceFollowsConfiguredCutoffs(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.Timezone = "UTC"
	cfg.CutoffDays = []int{10, 20}
	svc := NewService(Params{Holder: config.NewStaticBillingConfigHolder(cfg), Log: zap.NewNop()})

	periods, err := svc.PeriodsInMonth(context.Background(), 2024, time.April)
	require.NoError(t, err)
	require.Len(t, periods, 3)
	assert.Equal(t, "EOM", periods[2].CutoffLabel())
	assert.Equal(t, 21, periods[2].StartDate.Day())

	p, err := svc.PeriodFor(context.Background(), time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2024-04/10", p.Key())
}
