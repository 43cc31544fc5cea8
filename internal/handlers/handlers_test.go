package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openedx/platform-plugin-aspects/internal/config"
	"github.com/openedx/platform-plugin-aspects/internal/coursekey"
	"github.com/openedx/platform-plugin-aspects/internal/models"
)

var testDB *gorm.DB

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	var err error
	testDB, err = gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		panic(err)
	}
	if err := testDB.AutoMigrate(&models.User{}, &models.CourseAccessRole{}, &models.CourseOverview{}); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

// fakeTokenMinter returns a canned guest token or error.
type fakeTokenMinter struct {
	token string
	err   error

	lastUsername string
	lastCourse   coursekey.CourseKey
}

func (f *fakeTokenMinter) GuestToken(username string, course coursekey.CourseKey, dashboards []config.Dashboard, filters []string) (string, error) {
	f.lastUsername = username
	f.lastCourse = course
	return f.token, f.err
}

// fakeHandlerEnqueuer records enqueued dump tasks for the trigger endpoints.
type fakeHandlerEnqueuer struct {
	courses []string
	dumps   [][3]string
	err     error
}

func (f *fakeHandlerEnqueuer) DumpCourseToClickHouse(courseKey string) error {
	if f.err != nil {
		return f.err
	}
	f.courses = append(f.courses, courseKey)
	return nil
}

func (f *fakeHandlerEnqueuer) DumpDataToClickHouse(sinkModule, sinkName, objectID string) error {
	if f.err != nil {
		return f.err
	}
	f.dumps = append(f.dumps, [3]string{sinkModule, sinkName, objectID})
	return nil
}

func resetTables(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.Exec("DELETE FROM student_courseaccessrole").Error)
	require.NoError(t, testDB.Exec("DELETE FROM course_overviews_courseoverview").Error)
	require.NoError(t, testDB.Exec("DELETE FROM auth_user").Error)
}

func newTestRouter(t *testing.T, minter TokenMinter, enqueuer Enqueuer) *gin.Engine {
	t.Helper()
	cfg := &config.Config{
		Dashboards: []config.Dashboard{{Name: "Course Dashboard", UUID: "1d6bf904-f53f-47fd-b1c9-6cd7e284d286"}},
	}
	handler := NewHandler(cfg, minter, NewGormAccessChecker(testDB), NewGormCourseLocator(testDB), enqueuer)
	router := gin.New()
	handler.RegisterRoutes(router)
	return router
}

func seedCourseAndUsers(t *testing.T) {
	t.Helper()
	resetTables(t)
	require.NoError(t, testDB.Create(&models.CourseOverview{ID: "course-v1:edX+DemoX+2024", Org: "edX"}).Error)
	require.NoError(t, testDB.Create(&models.User{ID: 1, Username: "admin", IsStaff: true}).Error)
	require.NoError(t, testDB.Create(&models.User{ID: 2, Username: "teacher"}).Error)
	require.NoError(t, testDB.Create(&models.User{ID: 3, Username: "learner"}).Error)
	require.NoError(t, testDB.Create(&models.CourseAccessRole{
		UserID: 2, Org: "edX", CourseID: "course-v1:edX+DemoX+2024", Role: "instructor",
	}).Error)
}

func getGuestToken(router *gin.Engine, courseID, username string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/superset_guest_token/"+courseID, nil)
	if username != "" {
		req.Header.Set("X-Edx-User", username)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestGuestTokenSuccess(t *testing.T) {
	seedCourseAndUsers(t)
	minter := &fakeTokenMinter{token: "guest-token-value"}
	router := newTestRouter(t, minter, &fakeHandlerEnqueuer{})

	w := getGuestToken(router, "course-v1:edX+DemoX+2024", "teacher")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "guest-token-value", body["guestToken"])
	assert.Equal(t, "teacher", minter.lastUsername)
	assert.Equal(t, "edX", minter.lastCourse.Org)
}

func TestGuestTokenStaffBypassesRoleCheck(t *testing.T) {
	seedCourseAndUsers(t)
	router := newTestRouter(t, &fakeTokenMinter{token: "tok"}, &fakeHandlerEnqueuer{})

	w := getGuestToken(router, "course-v1:edX+DemoX+2024", "admin")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGuestTokenRequiresAuthentication(t *testing.T) {
	seedCourseAndUsers(t)
	router := newTestRouter(t, &fakeTokenMinter{token: "tok"}, &fakeHandlerEnqueuer{})

	w := getGuestToken(router, "course-v1:edX+DemoX+2024", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGuestTokenDeniesUsersWithoutRole(t *testing.T) {
	seedCourseAndUsers(t)
	router := newTestRouter(t, &fakeTokenMinter{token: "tok"}, &fakeHandlerEnqueuer{})

	w := getGuestToken(router, "course-v1:edX+DemoX+2024", "learner")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Unknown users are denied, not errored.
	w = getGuestToken(router, "course-v1:edX+DemoX+2024", "ghost")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGuestTokenMalformedCourseIs404(t *testing.T) {
	seedCourseAndUsers(t)
	router := newTestRouter(t, &fakeTokenMinter{token: "tok"}, &fakeHandlerEnqueuer{})

	w := getGuestToken(router, "not-a-course-key", "teacher")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGuestTokenMissingCourseIs404(t *testing.T) {
	seedCourseAndUsers(t)
	router := newTestRouter(t, &fakeTokenMinter{token: "tok"}, &fakeHandlerEnqueuer{})

	w := getGuestToken(router, "course-v1:edX+MissingX+2024", "teacher")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGuestTokenSupersetFailureIs500(t *testing.T) {
	seedCourseAndUsers(t)
	minter := &fakeTokenMinter{err: errors.New("superset unreachable")}
	router := newTestRouter(t, minter, &fakeHandlerEnqueuer{})

	w := getGuestToken(router, "course-v1:edX+DemoX+2024", "teacher")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTriggerCourseDump(t *testing.T) {
	seedCourseAndUsers(t)
	enqueuer := &fakeHandlerEnqueuer{}
	router := newTestRouter(t, &fakeTokenMinter{}, enqueuer)

	payload, _ := json.Marshal(map[string]string{"course_key": "course-v1:edX+DemoX+2024"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/dump/course", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"course-v1:edX+DemoX+2024"}, enqueuer.courses)
}

func TestTriggerCourseDumpRejectsBadInput(t *testing.T) {
	seedCourseAndUsers(t)
	enqueuer := &fakeHandlerEnqueuer{}
	router := newTestRouter(t, &fakeTokenMinter{}, enqueuer)

	for _, body := range []string{`{}`, `{"course_key": "not-a-key"}`, `not json`} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/api/v1/dump/course", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
	assert.Empty(t, enqueuer.courses)
}

func TestTriggerDataDump(t *testing.T) {
	seedCourseAndUsers(t)
	enqueuer := &fakeHandlerEnqueuer{}
	router := newTestRouter(t, &fakeTokenMinter{}, enqueuer)

	payload, _ := json.Marshal(map[string]string{
		"sink_module": "sinks",
		"sink_name":   "UserProfileSink",
		"object_id":   "42",
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/dump/data", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, enqueuer.dumps, 1)
	assert.Equal(t, [3]string{"sinks", "UserProfileSink", "42"}, enqueuer.dumps[0])
}

func TestTriggerDumpEnqueueFailureIs500(t *testing.T) {
	seedCourseAndUsers(t)
	enqueuer := &fakeHandlerEnqueuer{err: errors.New("queue down")}
	router := newTestRouter(t, &fakeTokenMinter{}, enqueuer)

	payload, _ := json.Marshal(map[string]string{"course_key": "course-v1:edX+DemoX+2024"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/dump/course", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	seedCourseAndUsers(t)
	router := newTestRouter(t, &fakeTokenMinter{}, &fakeHandlerEnqueuer{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOrgWideRoleGrantsAccess(t *testing.T) {
	seedCourseAndUsers(t)
	require.NoError(t, testDB.Create(&models.User{ID: 4, Username: "orgstaff"}).Error)
	require.NoError(t, testDB.Create(&models.CourseAccessRole{
		UserID: 4, Org: "edX", CourseID: "", Role: "staff",
	}).Error)
	router := newTestRouter(t, &fakeTokenMinter{token: "tok"}, &fakeHandlerEnqueuer{})

	w := getGuestToken(router, "course-v1:edX+DemoX+2024", "orgstaff")
	assert.Equal(t, http.StatusOK, w.Code)
}
