package models

import (
	"time"
)

// These models mirror the host learning platform's relational schema. The
// plugin only ever reads them; ownership (migrations, writes) stays with the
// host. Field sets match what the sink serializers project.

// User is the host's auth user row.
type User struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	Username string `json:"username" gorm:"type:varchar(150);not null;unique"`
	Email    string `json:"email" gorm:"type:varchar(254)"`
	IsStaff  bool   `json:"is_staff" gorm:"default:false"`
}

func (User) TableName() string { return "auth_user" }

// CourseAccessRole grants a user a role on a course or an entire org. An
// empty CourseID means the role applies org-wide.
type CourseAccessRole struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	UserID   uint   `json:"user_id" gorm:"not null;index"`
	User     *User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Org      string `json:"org" gorm:"type:varchar(64);index"`
	CourseID string `json:"course_id" gorm:"type:varchar(255);index"`
	Role     string `json:"role" gorm:"type:varchar(64);not null"`
}

func (CourseAccessRole) TableName() string { return "student_courseaccessrole" }

// UserProfile is the host's extended user profile.
type UserProfile struct {
	ID                     uint       `json:"id" gorm:"primaryKey"`
	UserID                 uint       `json:"user_id" gorm:"not null;index"`
	User                   *User      `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Name                   string     `json:"name" gorm:"type:varchar(255)"`
	Meta                   string     `json:"meta" gorm:"type:text"`
	Courseware             string     `json:"courseware" gorm:"type:varchar(255)"`
	Language               string     `json:"language" gorm:"type:varchar(255)"`
	Location               string     `json:"location" gorm:"type:varchar(255)"`
	YearOfBirth            *int       `json:"year_of_birth,omitempty"`
	Gender                 string     `json:"gender" gorm:"type:varchar(6)"`
	LevelOfEducation       string     `json:"level_of_education" gorm:"type:varchar(6)"`
	MailingAddress         string     `json:"mailing_address" gorm:"type:text"`
	City                   string     `json:"city" gorm:"type:text"`
	Country                string     `json:"country" gorm:"type:varchar(2)"`
	State                  string     `json:"state" gorm:"type:varchar(2)"`
	Goals                  string     `json:"goals" gorm:"type:text"`
	Bio                    string     `json:"bio" gorm:"type:varchar(3000)"`
	ProfileImageUploadedAt *time.Time `json:"profile_image_uploaded_at,omitempty"`
	PhoneNumber            string     `json:"phone_number" gorm:"type:varchar(50)"`
	Modified               time.Time  `json:"modified" gorm:"autoUpdateTime"`
}

func (UserProfile) TableName() string { return "auth_userprofile" }

// ExternalIDType names a category of externally issued user identifiers.
type ExternalIDType struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"type:varchar(32);not null;unique"`
}

func (ExternalIDType) TableName() string { return "external_user_ids_externalidtype" }

// ExternalID associates a user with an identifier issued by an external system.
type ExternalID struct {
	ID               uint            `json:"id" gorm:"primaryKey"`
	ExternalUserID   string          `json:"external_user_id" gorm:"type:uuid;not null"`
	ExternalIDTypeID uint            `json:"external_id_type_id" gorm:"not null"`
	ExternalIDType   *ExternalIDType `json:"external_id_type,omitempty" gorm:"foreignKey:ExternalIDTypeID"`
	UserID           uint            `json:"user_id" gorm:"not null;index"`
	User             *User           `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Modified         time.Time       `json:"modified" gorm:"autoUpdateTime"`
}

func (ExternalID) TableName() string { return "external_user_ids_externalid" }

// CourseEnrollment records a user's membership in a course run.
type CourseEnrollment struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	CourseID string    `json:"course_id" gorm:"type:varchar(255);not null;index"`
	UserID   uint      `json:"user_id" gorm:"not null;index"`
	User     *User     `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Created  time.Time `json:"created" gorm:"autoCreateTime"`
	IsActive bool      `json:"is_active" gorm:"default:true"`
	Mode     string    `json:"mode" gorm:"type:varchar(100);default:audit"`
}

func (CourseEnrollment) TableName() string { return "student_courseenrollment" }

// CourseOverview is the host's denormalized course metadata row. The primary
// key is the serialized course key, e.g. "course-v1:edX+DemoX+2024".
type CourseOverview struct {
	ID              string     `json:"id" gorm:"type:varchar(255);primaryKey"`
	Org             string     `json:"org" gorm:"type:varchar(255);index"`
	DisplayName     string     `json:"display_name" gorm:"type:text"`
	Start           *time.Time `json:"start,omitempty"`
	End             *time.Time `json:"end,omitempty"`
	EnrollmentStart *time.Time `json:"enrollment_start,omitempty"`
	EnrollmentEnd   *time.Time `json:"enrollment_end,omitempty"`
	SelfPaced       bool       `json:"self_paced" gorm:"default:false"`
	Created         time.Time  `json:"created" gorm:"autoCreateTime"`
	Modified        time.Time  `json:"modified" gorm:"autoUpdateTime"`

	// Fields folded into course_data_json by the serializer.
	AdvertisedStart              string     `json:"advertised_start" gorm:"type:varchar(255)"`
	Announcement                 *time.Time `json:"announcement,omitempty"`
	LowestPassingGrade           float64    `json:"lowest_passing_grade" gorm:"type:decimal(5,2)"`
	InvitationOnly               bool       `json:"invitation_only" gorm:"default:false"`
	MaxStudentEnrollmentsAllowed *int       `json:"max_student_enrollments_allowed,omitempty"`
	Effort                       string     `json:"effort" gorm:"type:text"`
	EnableProctoredExams         bool       `json:"enable_proctored_exams" gorm:"default:false"`
	EntranceExamEnabled          string     `json:"entrance_exam_enabled" gorm:"type:varchar(255)"`
	ExternalID                   string     `json:"external_id" gorm:"type:text"`
	Language                     string     `json:"language" gorm:"type:varchar(8)"`
}

func (CourseOverview) TableName() string { return "course_overviews_courseoverview" }

// CustomCourse is a CCX: a custom sub-course derived from a parent course.
type CustomCourse struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	CourseID    string    `json:"course_id" gorm:"type:varchar(255);not null;index"`
	DisplayName string    `json:"display_name" gorm:"type:text"`
	Modified    time.Time `json:"modified" gorm:"autoUpdateTime"`
}

func (CustomCourse) TableName() string { return "ccx_customcourseforedx" }

// CourseKey returns the serialized course key of the CCX run itself.
func (c CustomCourse) CourseKey() string {
	// CCX keys are the parent key re-namespaced with the CCX id, e.g.
	// "ccx-v1:edX+DemoX+2024+ccx@3" for parent "course-v1:edX+DemoX+2024".
	key := c.CourseID
	if len(key) > len("course-v1:") && key[:len("course-v1:")] == "course-v1:" {
		key = key[len("course-v1:"):]
	}
	return "ccx-v1:" + key + "+ccx@" + itoa(c.ID)
}

func itoa(n uint) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Taxonomy is a classification tree. A Taxonomy owns its Tags.
type Taxonomy struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	Name     string    `json:"name" gorm:"type:varchar(255);not null"`
	Modified time.Time `json:"modified" gorm:"autoUpdateTime"`
}

func (Taxonomy) TableName() string { return "oel_tagging_taxonomy" }

// Tag is one node in a taxonomy's tag tree. ParentID is a weak reference used
// for lineage lookup; no tag may be its own ancestor.
type Tag struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TaxonomyID uint      `json:"taxonomy_id" gorm:"not null;index"`
	Taxonomy   *Taxonomy `json:"taxonomy,omitempty" gorm:"foreignKey:TaxonomyID"`
	ParentID   *uint     `json:"parent_id,omitempty"`
	Value      string    `json:"value" gorm:"type:varchar(500);not null"`
	ExternalID string    `json:"external_id" gorm:"type:varchar(255)"`
	Modified   time.Time `json:"modified" gorm:"autoUpdateTime"`
}

func (Tag) TableName() string { return "oel_tagging_tag" }

// ObjectTag applies a Tag to an arbitrary tagged entity, identified by a
// serialized object id (usage key, course key, ...).
type ObjectTag struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ObjectID   string    `json:"object_id" gorm:"type:varchar(255);not null;index"`
	TaxonomyID uint      `json:"taxonomy_id" gorm:"not null"`
	Taxonomy   *Taxonomy `json:"taxonomy,omitempty" gorm:"foreignKey:TaxonomyID"`
	TagID      *uint     `json:"tag_id,omitempty"`
	Tag        *Tag      `json:"tag,omitempty" gorm:"foreignKey:TagID"`
	Value      string    `json:"_value" gorm:"column:_value;type:varchar(500)"`
	ExportID   string    `json:"_export_id" gorm:"column:_export_id;type:varchar(255)"`
	Modified   time.Time `json:"modified" gorm:"autoUpdateTime"`
}

func (ObjectTag) TableName() string { return "oel_tagging_objecttag" }
