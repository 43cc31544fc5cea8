package handlers

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/openedx/platform-plugin-aspects/internal/coursekey"
	"github.com/openedx/platform-plugin-aspects/internal/models"
)

// dashboardRoles are the course access roles that may view course dashboards.
var dashboardRoles = []string{"staff", "instructor"}

// GormAccessChecker checks course dashboard access against the host's auth
// tables. Platform staff see everything; everyone else needs a staff or
// instructor role on the course or its org.
type GormAccessChecker struct {
	db *gorm.DB
}

// NewGormAccessChecker creates a GormAccessChecker.
func NewGormAccessChecker(db *gorm.DB) *GormAccessChecker {
	return &GormAccessChecker{db: db}
}

// CanAccessCourse reports whether username may view courseKey's dashboards.
// Unknown users are denied, not errored.
func (a *GormAccessChecker) CanAccessCourse(username, courseKey string) (bool, error) {
	var user models.User
	err := a.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user %s: %w", username, err)
	}

	if user.IsStaff {
		return true, nil
	}

	course, err := coursekey.Parse(courseKey)
	if err != nil {
		return false, nil
	}

	var count int64
	err = a.db.Model(&models.CourseAccessRole{}).
		Where("user_id = ? AND role IN ?", user.ID, dashboardRoles).
		Where("course_id = ? OR (course_id = '' AND org = ?)", courseKey, course.Org).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check course roles for %s: %w", username, err)
	}
	return count > 0, nil
}

// GormCourseLocator resolves course existence from the host's course
// overview table.
type GormCourseLocator struct {
	db *gorm.DB
}

// NewGormCourseLocator creates a GormCourseLocator.
func NewGormCourseLocator(db *gorm.DB) *GormCourseLocator {
	return &GormCourseLocator{db: db}
}

// CourseExists reports whether the course overview row is present.
func (l *GormCourseLocator) CourseExists(courseKey string) (bool, error) {
	var count int64
	err := l.db.Model(&models.CourseOverview{}).Where("id = ?", courseKey).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up course %s: %w", courseKey, err)
	}
	return count > 0, nil
}
