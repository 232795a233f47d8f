package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/portbilling/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type berth struct {
	ID     int64  `gorm:"primaryKey"`
	Code   string `gorm:"uniqueIndex"`
	Port   string
	Length int
}

func newStore(t *testing.T) (Repository[berth], *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&berth{}))
	return ProvideStore[berth](db), db
}

func TestFindOneMissingIsNil(t *testing.T) {
	store, _ := newStore(t)

	got, err := store.FindOne(context.Background(), &berth{Code: "B-01"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsertOverwritesUpdateColumns(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &berth{ID: 1, Code: "B-01", Port: "MER", Length: 180}))
	require.NoError(t, store.Upsert(ctx, &berth{ID: 2, Code: "B-01", Port: "IZM", Length: 240},
		[]string{"code"}, []string{"length"}))

	got, err := store.FindOne(ctx, &berth{Code: "B-01"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, "MER", got.Port)
	assert.Equal(t, 240, got.Length)
}

func TestFindAppliesOptions(t *testing.T) {
	store, db := newStore(t)
	ctx := context.Background()

	for i, code := range []string{"B-03", "B-01", "B-02"} {
		require.NoError(t, store.Create(ctx, &berth{ID: int64(i + 1), Code: code, Port: "MER", Length: 100 * (i + 1)}))
	}

	rows, err := store.Find(ctx, &berth{Port: "MER"}, option.WithWhere("length >= ?", 200), option.WithOrder("code ASC"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "B-01", rows[0].Code)
	assert.Equal(t, "B-02", rows[1].Code)

	tx := db.Begin()
	require.NoError(t, store.WithTrx(tx).Create(ctx, &berth{ID: 9, Code: "B-09", Port: "MER"}))
	require.NoError(t, tx.Rollback().Error)

	got, err := store.FindOne(ctx, &berth{Code: "B-09"})
	require.NoError(t, err)
	assert.Nil(t, got)
}
