package serializers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openedx/platform-plugin-aspects/internal/models"
)

type stubTagProvider struct {
	tags map[string][]string
}

func (s stubTagProvider) TagsForObject(objectID string) map[string][]string {
	return s.tags
}

type stubLineageProvider struct {
	lineage map[uint][]string
}

func (s stubLineageProvider) TagLineage(tagID uint) []string {
	return s.lineage[tagID]
}

func TestUserProfileSerializer(t *testing.T) {
	year := 1989
	profile := &models.UserProfile{
		ID:     12,
		UserID: 34,
		User:   &models.User{ID: 34, Username: "learner", Email: "learner@example.com"},
		Name:   "Test Learner",
		Country:     "US",
		YearOfBirth: &year,
	}

	record, err := UserProfileSerializer{}.Serialize(profile)
	require.NoError(t, err)

	assert.Equal(t, uint(12), record.Values["id"])
	assert.Equal(t, uint(34), record.Values["user_id"])
	assert.Equal(t, "learner@example.com", record.Values["email"])
	assert.Equal(t, 1989, record.Values["year_of_birth"])
	assert.NotEmpty(t, record.Values["dump_id"])
	assert.NotEmpty(t, record.Values["time_last_dumped"])
	assert.Equal(t, UserProfileSerializer{}.Fields(), record.Columns)
}

func TestUserProfileSerializerRequiresUserRelation(t *testing.T) {
	_, err := UserProfileSerializer{}.Serialize(&models.UserProfile{ID: 12})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no user relation")
}

func TestUserExternalIDSerializer(t *testing.T) {
	extID := &models.ExternalID{
		ID:             5,
		ExternalUserID: "a7b6c5d4-0000-0000-0000-000000000000",
		ExternalIDType: &models.ExternalIDType{Name: "xapi"},
		UserID:         34,
		User:           &models.User{ID: 34, Username: "learner"},
	}

	record, err := UserExternalIDSerializer{}.Serialize(extID)
	require.NoError(t, err)
	assert.Equal(t, "xapi", record.Values["external_id_type"])
	assert.Equal(t, "learner", record.Values["username"])
}

func TestUserRetirementSerializer(t *testing.T) {
	record, err := UserRetirementSerializer{}.Serialize(&models.User{ID: 99})
	require.NoError(t, err)
	assert.Equal(t, []string{"user_id"}, record.Columns)
	assert.Equal(t, []string{"99"}, record.CSVRow())
}

func TestCourseEnrollmentSerializer(t *testing.T) {
	enrollment := &models.CourseEnrollment{
		ID:       3,
		CourseID: "course-v1:edX+DemoX+2024",
		UserID:   34,
		User:     &models.User{ID: 34, Username: "learner"},
		IsActive: true,
		Mode:     "verified",
	}

	record, err := CourseEnrollmentSerializer{}.Serialize(enrollment)
	require.NoError(t, err)
	assert.Equal(t, "course-v1:edX+DemoX+2024", record.Values["course_key"])
	assert.Equal(t, true, record.Values["is_active"])
	assert.Equal(t, "verified", record.Values["mode"])
}

func TestTagSerializerIncludesLineage(t *testing.T) {
	parent := uint(1)
	tag := &models.Tag{ID: 3, TaxonomyID: 7, ParentID: &parent, Value: "Leaf"}

	lineage := stubLineageProvider{lineage: map[uint][]string{
		3: {"Root", "Mid", "Leaf"},
	}}
	record, err := TagSerializer{Lineage: lineage}.Serialize(tag)
	require.NoError(t, err)

	assert.Equal(t, uint(1), record.Values["parent"])
	assert.Equal(t, `["Root","Mid","Leaf"]`, record.Values["lineage"])
}

func TestObjectTagSerializerFreeTextLineage(t *testing.T) {
	objectTag := &models.ObjectTag{
		ID:         8,
		ObjectID:   "course-v1:edX+DemoX+2024",
		TaxonomyID: 7,
		Value:      "free text value",
	}

	record, err := ObjectTagSerializer{Lineage: stubLineageProvider{}}.Serialize(objectTag)
	require.NoError(t, err)
	assert.Nil(t, record.Values["tag"])
	assert.Equal(t, `["free text value"]`, record.Values["lineage"])
}

func TestCourseOverviewSerializerEmbedsCourseData(t *testing.T) {
	announcement := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	maxEnrollments := 200
	overview := &models.CourseOverview{
		ID:                           "course-v1:edX+DemoX+2024",
		Org:                          "edX",
		DisplayName:                  "Demonstration Course",
		SelfPaced:                    true,
		Announcement:                 &announcement,
		LowestPassingGrade:           0.65,
		MaxStudentEnrollmentsAllowed: &maxEnrollments,
		Language:                     "en",
	}

	tags := stubTagProvider{tags: map[string][]string{
		"Subject": {"Science", "Science > Physics"},
	}}
	record, err := CourseOverviewSerializer{Tags: tags}.Serialize(overview)
	require.NoError(t, err)

	assert.Equal(t, "edX", record.Values["org"])
	assert.Equal(t, "course-v1:edX+DemoX+2024", record.Values["course_key"])

	var courseData map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(record.Values["course_data_json"].(string)), &courseData))
	assert.Equal(t, "2024-02-01T12:00:00.000000+00:00", courseData["announcement"])
	assert.Equal(t, 0.65, courseData["lowest_passing_grade"])
	assert.Equal(t, float64(200), courseData["max_student_enrollments_allowed"])
	assert.Equal(t, "en", courseData["language"])

	tagData := courseData["tags"].(map[string]interface{})
	subjects := tagData["Subject"].([]interface{})
	assert.Equal(t, []interface{}{"Science", "Science > Physics"}, subjects)
}

func TestSerializersRejectWrongEntityType(t *testing.T) {
	_, err := UserProfileSerializer{}.Serialize(&models.User{})
	assert.Error(t, err)
	_, err = CourseOverviewSerializer{}.Serialize(&models.UserProfile{})
	assert.Error(t, err)
}
