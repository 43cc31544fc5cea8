package models

import (
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/openedx/platform-plugin-aspects/internal/config"
	"github.com/openedx/platform-plugin-aspects/internal/registry"
)

// RegisterHostModels installs accessors for every host model the sinks dump.
// Called once from main; there is deliberately no registration at import time.
func RegisterHostModels(r *registry.Registry, db *gorm.DB) {
	module := config.ModelsModule

	r.Register(module, "User", registry.NewAccessor(db, registry.AccessorConfig[User]{
		PrimaryKey: func(u *User) string { return strconv.FormatUint(uint64(u.ID), 10) },
	}))

	r.Register(module, "UserProfile", registry.NewAccessor(db, registry.AccessorConfig[UserProfile]{
		PrimaryKey:   func(p *UserProfile) string { return strconv.FormatUint(uint64(p.ID), 10) },
		LastModified: func(p *UserProfile) (time.Time, bool) { return p.Modified, !p.Modified.IsZero() },
		Preloads:     []string{"User"},
	}))

	r.Register(module, "ExternalID", registry.NewAccessor(db, registry.AccessorConfig[ExternalID]{
		PrimaryKey:   func(e *ExternalID) string { return strconv.FormatUint(uint64(e.ID), 10) },
		LastModified: func(e *ExternalID) (time.Time, bool) { return e.Modified, !e.Modified.IsZero() },
		Preloads:     []string{"User", "ExternalIDType"},
	}))

	r.Register(module, "CourseEnrollment", registry.NewAccessor(db, registry.AccessorConfig[CourseEnrollment]{
		PrimaryKey: func(e *CourseEnrollment) string { return strconv.FormatUint(uint64(e.ID), 10) },
		Preloads:   []string{"User"},
	}))

	r.Register(module, "CourseOverview", registry.NewAccessor(db, registry.AccessorConfig[CourseOverview]{
		PrimaryKey:   func(o *CourseOverview) string { return o.ID },
		LastModified: func(o *CourseOverview) (time.Time, bool) { return o.Modified, !o.Modified.IsZero() },
	}))

	r.Register(module, "CustomCourse", registry.NewAccessor(db, registry.AccessorConfig[CustomCourse]{
		PrimaryKey: func(c *CustomCourse) string { return strconv.FormatUint(uint64(c.ID), 10) },
	}))

	r.Register(module, "Taxonomy", registry.NewAccessor(db, registry.AccessorConfig[Taxonomy]{
		PrimaryKey:   func(t *Taxonomy) string { return strconv.FormatUint(uint64(t.ID), 10) },
		LastModified: func(t *Taxonomy) (time.Time, bool) { return t.Modified, !t.Modified.IsZero() },
	}))

	r.Register(module, "Tag", registry.NewAccessor(db, registry.AccessorConfig[Tag]{
		PrimaryKey:   func(t *Tag) string { return strconv.FormatUint(uint64(t.ID), 10) },
		LastModified: func(t *Tag) (time.Time, bool) { return t.Modified, !t.Modified.IsZero() },
		Preloads:     []string{"Taxonomy"},
	}))

	r.Register(module, "ObjectTag", registry.NewAccessor(db, registry.AccessorConfig[ObjectTag]{
		PrimaryKey:   func(t *ObjectTag) string { return strconv.FormatUint(uint64(t.ID), 10) },
		LastModified: func(t *ObjectTag) (time.Time, bool) { return t.Modified, !t.Modified.IsZero() },
		Preloads:     []string{"Taxonomy", "Tag"},
	}))
}
