package migration

import (
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	taxdomain "github.com/smallbiznis/portbilling/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	src, err := embeddedSource()
	require.NoError(t, err)

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var versions []uint
	for {
		versions = append(versions, version)
		down, _, err := src.ReadDown(version)
		require.NoError(t, err, "missing down migration for %d", version)
		require.NoError(t, down.Close())
		next, err := src.Next(version)
		if err != nil {
			require.ErrorIs(t, err, os.ErrNotExist)
			break
		}
		version = next
	}
	assert.Equal(t, []uint{1, 2}, versions)
}

func TestAutoMigrateAndSeedAreIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, AutoMigrate(db))
	require.NoError(t, SeedVatCodes(db, now))
	require.NoError(t, AutoMigrate(db))
	require.NoError(t, SeedVatCodes(db, now.Add(time.Hour)))

	var codes []taxdomain.VatCode
	require.NoError(t, db.Order("code").Find(&codes).Error)
	require.Len(t, codes, 4)
	assert.Equal(t, "KDV0", codes[0].Code)
	assert.Equal(t, "KDV20", codes[3].Code)
	assert.Equal(t, "20", codes[3].RatePercent.String())
	assert.True(t, codes[3].CreatedAt.Equal(now))
}
