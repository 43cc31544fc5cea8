package sinks

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/openedx/platform-plugin-aspects/internal/clickhouse"
	"github.com/openedx/platform-plugin-aspects/internal/models"
	"github.com/openedx/platform-plugin-aspects/internal/registry"
	"github.com/openedx/platform-plugin-aspects/internal/serializers"
)

// ErrCourseNotFound marks a course key that resolves to no known course.
// This is a caller error, distinct from transient transport failures, so
// alerting can tell "bad input" from "store unavailable".
var ErrCourseNotFound = errors.New("course not found")

// CourseOverviewSink dumps a course: the overview record plus the flattened
// block tree, then any CCX variants of the course.
type CourseOverviewSink struct {
	ModelSink
	Blocks *XBlockSink
}

// NewCourseOverviewSink creates the course sink.
func NewCourseOverviewSink(reg *registry.Registry, ch *clickhouse.Client, tagProvider serializers.CourseTagProvider, blocks *XBlockSink) *CourseOverviewSink {
	return &CourseOverviewSink{
		ModelSink: ModelSink{
			Model:          "course_overviews",
			UniqueKey:      "course_key",
			Table:          "course_overviews",
			TimestampField: "time_last_dumped",
			SinkName:       "CourseOverviewSink",
			DisplayName:    "Course Overview",
			Serializer:     serializers.CourseOverviewSerializer{Tags: tagProvider},
			Registry:       reg,
			ClickHouse:     ch,
		},
		Blocks: blocks,
	}
}

// ShouldDumpCourse gates a course dump on the overview's modification (i.e.
// publish) timestamp against the store's checkpoint.
func (s *CourseOverviewSink) ShouldDumpCourse(ctx context.Context, accessor registry.ModelAccessor, overview interface{}) (bool, string, error) {
	modified, ok := accessor.LastModified(overview)
	if !ok {
		return false, "no modification timestamp", nil
	}

	courseKey := accessor.PrimaryKey(overview)
	lastDumped, err := s.ClickHouse.LastDumpedTimestamp(ctx, s.Table, s.TimestampField, s.UniqueKey, courseKey)
	if err != nil {
		return false, "", err
	}
	if lastDumped == "" {
		return true, fmt.Sprintf("course %s is not present in ClickHouse", courseKey), nil
	}

	publishedTimestamp := serializers.EncodeTime(modified)
	if publishedTimestamp > lastDumped {
		return true, fmt.Sprintf("course has been published since last dump: %s > %s", publishedTimestamp, lastDumped), nil
	}
	return false, fmt.Sprintf("course has not been published since last dump: %s <= %s", publishedTimestamp, lastDumped), nil
}

// DumpCourse exports one course and its CCX variants. The overview batch is
// sent before the block batches; a failure in either aborts the dump without
// rolling back batches already sent (delivery is at-least-once).
func (s *CourseOverviewSink) DumpCourse(ctx context.Context, courseKey string) error {
	accessor, ok := s.Registry.Resolve(s.Model)
	if !ok {
		log.Printf("Course Overview: model %s is not available, skipping dump of %s", s.Model, courseKey)
		return nil
	}

	overview, err := accessor.FindByPK(courseKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrCourseNotFound, courseKey)
		}
		return fmt.Errorf("failed to load course overview %s: %w", courseKey, err)
	}

	shouldDump, reason, err := s.ShouldDumpCourse(ctx, accessor, overview)
	if err != nil {
		return err
	}
	if !shouldDump {
		log.Printf("Course Overview: skipping dump of %s (%s)", courseKey, reason)
		return nil
	}
	log.Printf("Course Overview: dumping %s (%s)", courseKey, reason)

	overviewRecord, err := s.Serializer.Serialize(overview)
	if err != nil {
		return fmt.Errorf("failed to serialize course overview %s: %w", courseKey, err)
	}

	blockRecords, err := s.Blocks.Flatten(ctx, courseKey)
	if err != nil {
		return err
	}

	// Overview first, then blocks, so a partially dumped course is always
	// re-gated by the overview checkpoint on the next run.
	if err := s.ClickHouse.BulkInsert(ctx, s.Table, overviewRecord.Columns, [][]string{overviewRecord.CSVRow()}); err != nil {
		return err
	}
	if err := s.dumpBlocks(ctx, blockRecords); err != nil {
		return err
	}
	log.Printf("Course Overview: dumped %s with %d blocks", courseKey, len(blockRecords))

	return s.dumpCCXVariants(ctx, courseKey)
}

// dumpBlocks ships the flattened block records in page-sized batches.
func (s *CourseOverviewSink) dumpBlocks(ctx context.Context, records []serializers.Record) error {
	for start := 0; start < len(records); start += FetchSize {
		end := start + FetchSize
		if end > len(records) {
			end = len(records)
		}
		rows := make([][]string, 0, end-start)
		for _, record := range records[start:end] {
			rows = append(rows, record.CSVRow())
		}
		if err := s.ClickHouse.BulkInsert(ctx, s.Blocks.Table, xblockFields, rows); err != nil {
			return err
		}
	}
	return nil
}

// dumpCCXVariants recursively dumps every custom sub-course derived from the
// course. Absence of the CCX model means the feature is off; that is not an
// error.
func (s *CourseOverviewSink) dumpCCXVariants(ctx context.Context, courseKey string) error {
	ccxAccessor, ok := s.Registry.Resolve("custom_course_edx")
	if !ok {
		return nil
	}

	slice := ccxAccessor.NewSlice()
	if err := ccxAccessor.DB().Where("course_id = ?", courseKey).Order("id asc").Find(slice).Error; err != nil {
		return fmt.Errorf("failed to query CCX variants of %s: %w", courseKey, err)
	}
	for _, item := range ccxAccessor.Items(slice) {
		ccx, ok := item.(*models.CustomCourse)
		if !ok {
			return fmt.Errorf("Course Overview: unexpected CCX entity type %T", item)
		}
		if err := s.DumpCourse(ctx, ccx.CourseKey()); err != nil {
			return err
		}
	}
	return nil
}
