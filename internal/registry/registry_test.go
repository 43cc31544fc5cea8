package registry

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openedx/platform-plugin-aspects/internal/config"
)

type testModel struct {
	ID       uint `gorm:"primaryKey"`
	Name     string
	Modified time.Time
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&testModel{}))
	return db
}

func newTestAccessor(db *gorm.DB) *Accessor[testModel] {
	return NewAccessor(db, AccessorConfig[testModel]{
		PrimaryKey:   func(m *testModel) string { return strconv.FormatUint(uint64(m.ID), 10) },
		LastModified: func(m *testModel) (time.Time, bool) { return m.Modified, !m.Modified.IsZero() },
	})
}

func TestResolveRegisteredModel(t *testing.T) {
	db := newTestDB(t)
	reg := New(map[string]config.ModelBinding{
		"test_model": {Module: "internal/testing", Model: "TestModel"},
	})
	reg.Register("internal/testing", "TestModel", newTestAccessor(db))

	accessor, ok := reg.Resolve("test_model")
	require.True(t, ok)
	assert.NotNil(t, accessor)
}

func TestResolveFailurePaths(t *testing.T) {
	reg := New(map[string]config.ModelBinding{
		"no_module": {Model: "TestModel"},
		"no_model":  {Module: "internal/testing"},
		"unloaded":  {Module: "internal/testing", Model: "Missing"},
	})

	cases := []string{"unbound", "no_module", "no_model", "unloaded"}
	for _, name := range cases {
		accessor, ok := reg.Resolve(name)
		assert.False(t, ok, "expected %q to fail resolution", name)
		assert.Nil(t, accessor)
	}
}

func TestAccessorFindByPK(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testModel{ID: 7, Name: "seven"}).Error)
	accessor := newTestAccessor(db)

	entity, err := accessor.FindByPK("7")
	require.NoError(t, err)
	assert.Equal(t, "seven", entity.(*testModel).Name)
	assert.Equal(t, "7", accessor.PrimaryKey(entity))

	_, err = accessor.FindByPK("8")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAccessorItemsFlattensSlice(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testModel{ID: 1, Name: "one"}).Error)
	require.NoError(t, db.Create(&testModel{ID: 2, Name: "two"}).Error)
	accessor := newTestAccessor(db)

	slice := accessor.NewSlice()
	require.NoError(t, accessor.DB().Order("id asc").Find(slice).Error)

	items := accessor.Items(slice)
	require.Len(t, items, 2)
	assert.Equal(t, "one", items[0].(*testModel).Name)
	assert.Equal(t, "two", items[1].(*testModel).Name)
}

func TestAccessorLastModified(t *testing.T) {
	db := newTestDB(t)
	accessor := newTestAccessor(db)

	modified := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	ts, ok := accessor.LastModified(&testModel{ID: 1, Modified: modified})
	assert.True(t, ok)
	assert.Equal(t, modified, ts)

	_, ok = accessor.LastModified(&testModel{ID: 2})
	assert.False(t, ok)

	// A model configured without a timestamp extractor never reports one.
	bare := NewAccessor(db, AccessorConfig[testModel]{
		PrimaryKey: func(m *testModel) string { return strconv.FormatUint(uint64(m.ID), 10) },
	})
	_, ok = bare.LastModified(&testModel{ID: 3, Modified: modified})
	assert.False(t, ok)
}

func TestAccessorDefaultsPrimaryKeyColumn(t *testing.T) {
	accessor := newTestAccessor(newTestDB(t))
	assert.Equal(t, "id", accessor.PrimaryKeyColumn())
}
