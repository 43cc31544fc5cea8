package signals

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openedx/platform-plugin-aspects/internal/models"
	"github.com/openedx/platform-plugin-aspects/internal/sinks"
)

// fakeEnqueuer records enqueued dump tasks.
type fakeEnqueuer struct {
	courses []string
	dumps   [][3]string
}

func (f *fakeEnqueuer) DumpCourseToClickHouse(courseKey string) error {
	f.courses = append(f.courses, courseKey)
	return nil
}

func (f *fakeEnqueuer) DumpDataToClickHouse(sinkModule, sinkName, objectID string) error {
	f.dumps = append(f.dumps, [3]string{sinkModule, sinkName, objectID})
	return nil
}

func newSignalsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.UserProfile{}))
	return db
}

func TestReceiveCoursePublishEnqueuesImmediately(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	handlers := Connect(enqueuer)

	handlers.ReceiveCoursePublish("course-v1:edX+DemoX+2024")
	assert.Equal(t, []string{"course-v1:edX+DemoX+2024"}, enqueuer.courses)
}

func TestProfileUpdateEnqueuesAfterCommit(t *testing.T) {
	db := newSignalsTestDB(t)
	enqueuer := &fakeEnqueuer{}
	handlers := Connect(enqueuer)

	err := InTransaction(db, func(tx *gorm.DB, hooks *TxHooks) error {
		profile := &models.UserProfile{ID: 12, UserID: 34, Name: "Learner"}
		if err := tx.Create(profile).Error; err != nil {
			return err
		}
		handlers.OnUserProfileUpdated(hooks, profile)
		// Nothing is enqueued while the transaction is open.
		assert.Empty(t, enqueuer.dumps)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, enqueuer.dumps, 1)
	assert.Equal(t, [3]string{sinks.Module, "UserProfileSink", "12"}, enqueuer.dumps[0])
}

func TestRolledBackTransactionDiscardsEnqueue(t *testing.T) {
	db := newSignalsTestDB(t)
	enqueuer := &fakeEnqueuer{}
	handlers := Connect(enqueuer)

	err := InTransaction(db, func(tx *gorm.DB, hooks *TxHooks) error {
		profile := &models.UserProfile{ID: 12, UserID: 34, Name: "Learner"}
		if err := tx.Create(profile).Error; err != nil {
			return err
		}
		handlers.OnUserProfileUpdated(hooks, profile)
		return errors.New("validation failed")
	})
	require.Error(t, err)
	assert.Empty(t, enqueuer.dumps)
}

func TestEnrollmentAndExternalIDHandlers(t *testing.T) {
	db := newSignalsTestDB(t)
	enqueuer := &fakeEnqueuer{}
	handlers := Connect(enqueuer)

	err := InTransaction(db, func(tx *gorm.DB, hooks *TxHooks) error {
		handlers.OnEnrollmentChanged(hooks, &models.CourseEnrollment{ID: 5})
		handlers.OnExternalIDSaved(hooks, &models.ExternalID{ID: 6})
		return nil
	})
	require.NoError(t, err)

	require.Len(t, enqueuer.dumps, 2)
	assert.Equal(t, [3]string{sinks.Module, "CourseEnrollmentSink", "5"}, enqueuer.dumps[0])
	assert.Equal(t, [3]string{sinks.Module, "ExternalIDSink", "6"}, enqueuer.dumps[1])
}

func TestUserRetirementEnqueuesImmediately(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	handlers := Connect(enqueuer)

	handlers.OnUserRetirement(&models.User{ID: 42})
	require.Len(t, enqueuer.dumps, 1)
	assert.Equal(t, [3]string{sinks.Module, "UserRetirementSink", "42"}, enqueuer.dumps[0])
}

func TestTxHooksFlushRunsInOrder(t *testing.T) {
	hooks := &TxHooks{}
	var order []int
	hooks.AfterCommit(func() { order = append(order, 1) })
	hooks.AfterCommit(func() { order = append(order, 2) })

	hooks.flush()
	assert.Equal(t, []int{1, 2}, order)

	// A second flush is a no-op; callbacks run exactly once per commit.
	hooks.flush()
	assert.Equal(t, []int{1, 2}, order)
}
