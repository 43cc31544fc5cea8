package serializers

import (
	"fmt"

	"github.com/openedx/platform-plugin-aspects/internal/models"
)

// CourseTagProvider supplies the tag mapping embedded in course records.
type CourseTagProvider interface {
	TagsForObject(objectID string) map[string][]string
}

// TagLineageProvider supplies root-to-leaf value chains for tag records.
type TagLineageProvider interface {
	TagLineage(tagID uint) []string
}

// UserProfileSerializer projects a UserProfile row, pulling email through the
// user relation.
type UserProfileSerializer struct{}

func (UserProfileSerializer) Fields() []string {
	return withCommonFields([]string{
		"id", "user_id", "name", "email", "meta", "courseware", "language",
		"location", "year_of_birth", "gender", "level_of_education",
		"mailing_address", "city", "country", "state", "goals", "bio",
		"profile_image_uploaded_at", "phone_number",
	})
}

func (s UserProfileSerializer) Serialize(entity interface{}) (Record, error) {
	profile, ok := entity.(*models.UserProfile)
	if !ok {
		return Record{}, fmt.Errorf("UserProfileSerializer: unexpected entity type %T", entity)
	}
	if profile.User == nil {
		return Record{}, fmt.Errorf("user profile %d has no user relation", profile.ID)
	}
	values := map[string]interface{}{
		"id":                        profile.ID,
		"user_id":                   profile.UserID,
		"name":                      profile.Name,
		"email":                     profile.User.Email,
		"meta":                      profile.Meta,
		"courseware":                profile.Courseware,
		"language":                  profile.Language,
		"location":                  profile.Location,
		"year_of_birth":             intPtrValue(profile.YearOfBirth),
		"gender":                    profile.Gender,
		"level_of_education":        profile.LevelOfEducation,
		"mailing_address":           profile.MailingAddress,
		"city":                      profile.City,
		"country":                   profile.Country,
		"state":                     profile.State,
		"goals":                     profile.Goals,
		"bio":                       profile.Bio,
		"profile_image_uploaded_at": profile.ProfileImageUploadedAt,
		"phone_number":              profile.PhoneNumber,
	}
	stampCommon(values)
	return Record{Columns: s.Fields(), Values: values}, nil
}

// UserExternalIDSerializer projects an ExternalID row with the type name and
// username pulled through their relations.
type UserExternalIDSerializer struct{}

func (UserExternalIDSerializer) Fields() []string {
	return withCommonFields([]string{
		"external_user_id", "external_id_type", "username", "user_id",
	})
}

func (s UserExternalIDSerializer) Serialize(entity interface{}) (Record, error) {
	extID, ok := entity.(*models.ExternalID)
	if !ok {
		return Record{}, fmt.Errorf("UserExternalIDSerializer: unexpected entity type %T", entity)
	}
	if extID.User == nil {
		return Record{}, fmt.Errorf("external id %d has no user relation", extID.ID)
	}
	if extID.ExternalIDType == nil {
		return Record{}, fmt.Errorf("external id %d has no external id type relation", extID.ID)
	}
	values := map[string]interface{}{
		"external_user_id": extID.ExternalUserID,
		"external_id_type": extID.ExternalIDType.Name,
		"username":         extID.User.Username,
		"user_id":          extID.UserID,
	}
	stampCommon(values)
	return Record{Columns: s.Fields(), Values: values}, nil
}

// UserRetirementSerializer projects the minimal record announcing a retired user.
type UserRetirementSerializer struct{}

func (UserRetirementSerializer) Fields() []string {
	return []string{"user_id"}
}

func (s UserRetirementSerializer) Serialize(entity interface{}) (Record, error) {
	user, ok := entity.(*models.User)
	if !ok {
		return Record{}, fmt.Errorf("UserRetirementSerializer: unexpected entity type %T", entity)
	}
	return Record{
		Columns: s.Fields(),
		Values:  map[string]interface{}{"user_id": user.ID},
	}, nil
}

// CourseEnrollmentSerializer projects a CourseEnrollment row.
type CourseEnrollmentSerializer struct{}

func (CourseEnrollmentSerializer) Fields() []string {
	return withCommonFields([]string{
		"id", "course_key", "created", "is_active", "mode", "username", "user_id",
	})
}

func (s CourseEnrollmentSerializer) Serialize(entity interface{}) (Record, error) {
	enrollment, ok := entity.(*models.CourseEnrollment)
	if !ok {
		return Record{}, fmt.Errorf("CourseEnrollmentSerializer: unexpected entity type %T", entity)
	}
	if enrollment.User == nil {
		return Record{}, fmt.Errorf("course enrollment %d has no user relation", enrollment.ID)
	}
	values := map[string]interface{}{
		"id":         enrollment.ID,
		"course_key": enrollment.CourseID,
		"created":    enrollment.Created,
		"is_active":  enrollment.IsActive,
		"mode":       enrollment.Mode,
		"username":   enrollment.User.Username,
		"user_id":    enrollment.UserID,
	}
	stampCommon(values)
	return Record{Columns: s.Fields(), Values: values}, nil
}

// TaxonomySerializer projects a Taxonomy row.
type TaxonomySerializer struct{}

func (TaxonomySerializer) Fields() []string {
	return withCommonFields([]string{"id", "name"})
}

func (s TaxonomySerializer) Serialize(entity interface{}) (Record, error) {
	taxonomy, ok := entity.(*models.Taxonomy)
	if !ok {
		return Record{}, fmt.Errorf("TaxonomySerializer: unexpected entity type %T", entity)
	}
	values := map[string]interface{}{
		"id":   taxonomy.ID,
		"name": taxonomy.Name,
	}
	stampCommon(values)
	return Record{Columns: s.Fields(), Values: values}, nil
}

// TagSerializer projects a Tag row including its JSON-encoded lineage.
type TagSerializer struct {
	Lineage TagLineageProvider
}

func (TagSerializer) Fields() []string {
	return withCommonFields([]string{
		"id", "taxonomy", "parent", "value", "external_id", "lineage",
	})
}

func (s TagSerializer) Serialize(entity interface{}) (Record, error) {
	tag, ok := entity.(*models.Tag)
	if !ok {
		return Record{}, fmt.Errorf("TagSerializer: unexpected entity type %T", entity)
	}
	lineage, err := MarshalJSON(stringsToAny(s.lineageValues(tag)))
	if err != nil {
		return Record{}, err
	}
	values := map[string]interface{}{
		"id":          tag.ID,
		"taxonomy":    tag.TaxonomyID,
		"parent":      uintPtrValue(tag.ParentID),
		"value":       tag.Value,
		"external_id": tag.ExternalID,
		"lineage":     lineage,
	}
	stampCommon(values)
	return Record{Columns: s.Fields(), Values: values}, nil
}

func (s TagSerializer) lineageValues(tag *models.Tag) []string {
	if s.Lineage == nil {
		return []string{tag.Value}
	}
	return s.Lineage.TagLineage(tag.ID)
}

// ObjectTagSerializer projects an ObjectTag row including the lineage of the
// tag it applies. A free-text object tag with no Tag row keeps its own value
// as a single-element lineage.
type ObjectTagSerializer struct {
	Lineage TagLineageProvider
}

func (ObjectTagSerializer) Fields() []string {
	return withCommonFields([]string{
		"id", "object_id", "taxonomy", "tag", "_value", "_export_id", "lineage",
	})
}

func (s ObjectTagSerializer) Serialize(entity interface{}) (Record, error) {
	objectTag, ok := entity.(*models.ObjectTag)
	if !ok {
		return Record{}, fmt.Errorf("ObjectTagSerializer: unexpected entity type %T", entity)
	}
	lineageValues := []string{objectTag.Value}
	if objectTag.TagID != nil && s.Lineage != nil {
		lineageValues = s.Lineage.TagLineage(*objectTag.TagID)
	}
	lineage, err := MarshalJSON(stringsToAny(lineageValues))
	if err != nil {
		return Record{}, err
	}
	values := map[string]interface{}{
		"id":         objectTag.ID,
		"object_id":  objectTag.ObjectID,
		"taxonomy":   objectTag.TaxonomyID,
		"tag":        uintPtrValue(objectTag.TagID),
		"_value":     objectTag.Value,
		"_export_id": objectTag.ExportID,
		"lineage":    lineage,
	}
	stampCommon(values)
	return Record{Columns: s.Fields(), Values: values}, nil
}

// CourseOverviewSerializer projects a CourseOverview row, folding the
// secondary metadata and the course's root-level tags into course_data_json.
type CourseOverviewSerializer struct {
	Tags CourseTagProvider
}

func (CourseOverviewSerializer) Fields() []string {
	return withCommonFields([]string{
		"org", "course_key", "display_name", "course_start", "course_end",
		"enrollment_start", "enrollment_end", "self_paced",
		"course_data_json", "created", "modified",
	})
}

func (s CourseOverviewSerializer) Serialize(entity interface{}) (Record, error) {
	overview, ok := entity.(*models.CourseOverview)
	if !ok {
		return Record{}, fmt.Errorf("CourseOverviewSerializer: unexpected entity type %T", entity)
	}

	var tags map[string][]string
	if s.Tags != nil {
		tags = s.Tags.TagsForObject(overview.ID)
	}
	courseData := map[string]interface{}{
		"advertised_start":                overview.AdvertisedStart,
		"announcement":                    overview.Announcement,
		"lowest_passing_grade":            overview.LowestPassingGrade,
		"invitation_only":                 overview.InvitationOnly,
		"max_student_enrollments_allowed": intPtrValue(overview.MaxStudentEnrollmentsAllowed),
		"effort":                          overview.Effort,
		"enable_proctored_exams":          overview.EnableProctoredExams,
		"entrance_exam_enabled":           overview.EntranceExamEnabled,
		"external_id":                     overview.ExternalID,
		"language":                        overview.Language,
		"tags":                            tags,
	}
	courseDataJSON, err := MarshalJSON(courseData)
	if err != nil {
		return Record{}, err
	}

	values := map[string]interface{}{
		"org":              overview.Org,
		"course_key":       overview.ID,
		"display_name":     overview.DisplayName,
		"course_start":     overview.Start,
		"course_end":       overview.End,
		"enrollment_start": overview.EnrollmentStart,
		"enrollment_end":   overview.EnrollmentEnd,
		"self_paced":       overview.SelfPaced,
		"course_data_json": courseDataJSON,
		"created":          overview.Created,
		"modified":         overview.Modified,
	}
	stampCommon(values)
	return Record{Columns: s.Fields(), Values: values}, nil
}

func intPtrValue(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func uintPtrValue(p *uint) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func stringsToAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
