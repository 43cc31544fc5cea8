package sinks

import (
	"context"
	"fmt"
	"log"

	"github.com/openedx/platform-plugin-aspects/internal/clickhouse"
	"github.com/openedx/platform-plugin-aspects/internal/models"
	"github.com/openedx/platform-plugin-aspects/internal/registry"
	"github.com/openedx/platform-plugin-aspects/internal/serializers"
	"github.com/openedx/platform-plugin-aspects/internal/tags"
)

// NewUserProfileSink dumps user profile rows.
func NewUserProfileSink(reg *registry.Registry, ch *clickhouse.Client) *ModelSink {
	return &ModelSink{
		Model:          "user_profile",
		UniqueKey:      "id",
		Table:          "user_profile",
		TimestampField: "time_last_dumped",
		SinkName:       "UserProfileSink",
		DisplayName:    "User Profile",
		Serializer:     serializers.UserProfileSerializer{},
		Registry:       reg,
		ClickHouse:     ch,
	}
}

// NewExternalIDSink dumps user external ID rows.
func NewExternalIDSink(reg *registry.Registry, ch *clickhouse.Client) *ModelSink {
	return &ModelSink{
		Model:          "external_id",
		UniqueKey:      "id",
		Table:          "external_id",
		TimestampField: "time_last_dumped",
		SinkName:       "ExternalIDSink",
		DisplayName:    "External ID",
		Serializer:     serializers.UserExternalIDSerializer{},
		Registry:       reg,
		ClickHouse:     ch,
	}
}

// NewCourseEnrollmentSink dumps enrollment rows. Enrollment dumps are driven
// by enrollment-change events, so the timestamp gate is bypassed.
func NewCourseEnrollmentSink(reg *registry.Registry, ch *clickhouse.Client) *ModelSink {
	return &ModelSink{
		Model:          "course_enrollment",
		UniqueKey:      "id",
		Table:          "course_enrollment",
		TimestampField: "time_last_dumped",
		SinkName:       "CourseEnrollmentSink",
		DisplayName:    "Course Enrollment",
		Serializer:     serializers.CourseEnrollmentSerializer{},
		Registry:       reg,
		ClickHouse:     ch,
		AlwaysDump:     true,
	}
}

// NewTaxonomySink dumps taxonomy rows.
func NewTaxonomySink(reg *registry.Registry, ch *clickhouse.Client) *ModelSink {
	return &ModelSink{
		Model:          "taxonomy",
		UniqueKey:      "id",
		Table:          "taxonomy",
		TimestampField: "time_last_dumped",
		SinkName:       "TaxonomySink",
		DisplayName:    "Taxonomy",
		Serializer:     serializers.TaxonomySerializer{},
		Registry:       reg,
		ClickHouse:     ch,
	}
}

// NewTagSink dumps tag rows, including lineage.
func NewTagSink(reg *registry.Registry, ch *clickhouse.Client, resolver *tags.Resolver) *ModelSink {
	return &ModelSink{
		Model:          "tag",
		UniqueKey:      "id",
		Table:          "tag",
		TimestampField: "time_last_dumped",
		SinkName:       "TagSink",
		DisplayName:    "Tag",
		Serializer:     serializers.TagSerializer{Lineage: resolver},
		Registry:       reg,
		ClickHouse:     ch,
	}
}

// NewObjectTagSink dumps object tag rows, including lineage.
func NewObjectTagSink(reg *registry.Registry, ch *clickhouse.Client, resolver *tags.Resolver) *ModelSink {
	return &ModelSink{
		Model:          "object_tag",
		UniqueKey:      "id",
		Table:          "object_tag",
		TimestampField: "time_last_dumped",
		SinkName:       "ObjectTagSink",
		DisplayName:    "Object Tag",
		Serializer:     serializers.ObjectTagSerializer{Lineage: resolver},
		Registry:       reg,
		ClickHouse:     ch,
	}
}

// retirementScrubTables are the destination tables holding per-user rows that
// must be removed when a user is retired.
var retirementScrubTables = []string{"user_profile", "external_id"}

// NewUserRetirementSink announces retired users and scrubs their rows from
// the analytical store. Retirement is event-driven, so the timestamp gate is
// bypassed, and the dump cascades into per-table deletes.
func NewUserRetirementSink(reg *registry.Registry, ch *clickhouse.Client) *ModelSink {
	sink := &ModelSink{
		Model:          "auth_user",
		UniqueKey:      "user_id",
		Table:          "user_retirements",
		TimestampField: "time_last_dumped",
		SinkName:       "UserRetirementSink",
		DisplayName:    "User Retirement",
		Serializer:     serializers.UserRetirementSerializer{},
		Registry:       reg,
		ClickHouse:     ch,
		AlwaysDump:     true,
	}
	sink.AfterDumpItem = func(ctx context.Context, entity interface{}) error {
		user, ok := entity.(*models.User)
		if !ok {
			return fmt.Errorf("User Retirement: unexpected entity type %T", entity)
		}
		for _, table := range retirementScrubTables {
			query := fmt.Sprintf("ALTER TABLE %s DELETE WHERE user_id = %d", table, user.ID)
			if err := ch.Execute(ctx, query); err != nil {
				return fmt.Errorf("User Retirement: failed to scrub %s for user %d: %w", table, user.ID, err)
			}
			log.Printf("User Retirement: scrubbed rows for user %d from %s", user.ID, table)
		}
		return nil
	}
	return sink
}
