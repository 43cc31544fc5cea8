package sinks

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockedPostgres(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

// The bulk dump must page with a keyset predicate, never OFFSET: resuming at
// an arbitrary key has to cost one indexed range scan.
func TestFetchPageUsesKeysetPagination(t *testing.T) {
	db, mock := newMockedPostgres(t)
	reg := newSinkRegistry(t, db)
	sink := NewTaxonomySink(reg, nil)

	accessor, ok := reg.Resolve("taxonomy")
	require.True(t, ok)

	rows := sqlmock.NewRows([]string{"id", "name", "modified"}).
		AddRow(1001, "Taxonomy 1001", time.Now())
	mock.ExpectQuery(`SELECT .* FROM "oel_tagging_taxonomy" WHERE id > .* ORDER BY id asc LIMIT .*`).
		WillReturnRows(rows)

	items, err := sink.fetchPage(accessor, "1000")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPageFirstPageHasNoPredicate(t *testing.T) {
	db, mock := newMockedPostgres(t)
	reg := newSinkRegistry(t, db)
	sink := NewTaxonomySink(reg, nil)

	accessor, ok := reg.Resolve("taxonomy")
	require.True(t, ok)

	rows := sqlmock.NewRows([]string{"id", "name", "modified"}).
		AddRow(1, "Taxonomy 1", time.Now())
	mock.ExpectQuery(`SELECT .* FROM "oel_tagging_taxonomy" ORDER BY id asc LIMIT .*`).
		WillReturnRows(rows)

	items, err := sink.fetchPage(accessor, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
