package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"waitboard/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:cache_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.CachedItem{}, &model.CachedClass{}))
	return db
}

func TestGormCache_RoundTrip(t *testing.T) {
	db := newSQLiteDB(t)
	cache := NewGormCache(db)
	ctx := context.Background()

	items, classes := fixture()
	items = append(items,
		model.WaitingItem{ID: 99, ClassID: classA, ClassOrder: 9, Status: model.StatusCancelled},
		model.WaitingItem{ID: -1, ClassID: classA, ClassOrder: 9, Status: model.StatusWaiting, IsEmptySeat: true},
	)
	require.NoError(t, cache.SaveSnapshot(ctx, "store-1", items, classes))
	require.NoError(t, cache.SaveSnapshot(ctx, "store-2", items[:1], classes[:1]))

	gotItems, gotClasses, err := cache.LoadSnapshot(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{40, 41, 42, 43, 44, 50}, ids(gotItems), "cancelled and temporary rows are skipped")
	require.Len(t, gotClasses, 2)
	assert.Equal(t, classA, gotClasses[0].ID)
	assert.Equal(t, "11:00", gotClasses[1].ClassName)
	assert.Equal(t, model.StatusCalled, gotItems[3].Status)

	// A second save replaces the previous rows.
	require.NoError(t, cache.SaveSnapshot(ctx, "store-1", items[1:2], classes[:1]))
	gotItems, gotClasses, err = cache.LoadSnapshot(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{41}, ids(gotItems))
	assert.Len(t, gotClasses, 1)

	gotItems, _, err = cache.LoadSnapshot(ctx, "store-2")
	require.NoError(t, err)
	assert.Equal(t, []int64{40}, ids(gotItems))
}

func TestGormCache_SaveSnapshotRollsBack(t *testing.T) {
	db, mock := newTestDB(t)
	cache := NewGormCache(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "cached_items"`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	items, classes := fixture()
	err := cache.SaveSnapshot(context.Background(), "store-1", items, classes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to clear cached items")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCached_WarmStart(t *testing.T) {
	db := newSQLiteDB(t)
	cache := NewGormCache(db)
	items, classes := fixture()
	require.NoError(t, cache.SaveSnapshot(context.Background(), "store-1", items, classes))

	loader := &fakeLoader{items: items[:2], classes: classes[:1], gate: make(chan struct{})}
	loader.classes = []model.ClassSession{{ID: classA, ClassName: "10:00", CurrentCount: 2}}
	s := New(Options{StoreID: "store-1", Loader: loader, Cache: cache})

	require.NoError(t, s.LoadCached(context.Background()))
	assert.True(t, s.Runtime().Stale)
	assert.Equal(t, []int64{40, 41, 42, 43, 44}, ids(s.SelectByClass(classA)))

	done := make(chan error, 1)
	go func() { done <- s.Refresh(context.Background()) }()
	assert.Eventually(t, s.Loading, time.Second, 5*time.Millisecond, "cached data is not the first load")
	close(loader.gate)
	require.NoError(t, <-done)

	assert.False(t, s.Runtime().Stale)
	assert.Equal(t, []int64{40, 41}, ids(s.SelectByClass(classA)))

	// Live data wins over a late cache read.
	require.NoError(t, s.LoadCached(context.Background()))
	assert.Equal(t, []int64{40, 41}, ids(s.SelectByClass(classA)))
	assert.False(t, s.Runtime().Stale)
}

func TestLoadCached_NoCache(t *testing.T) {
	s := New(Options{})
	assert.NoError(t, s.LoadCached(context.Background()))
	assert.Empty(t, s.Classes())
}
