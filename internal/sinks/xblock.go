package sinks

import (
	"context"
	"fmt"

	"github.com/openedx/platform-plugin-aspects/internal/coursekey"
	"github.com/openedx/platform-plugin-aspects/internal/modulestore"
	"github.com/openedx/platform-plugin-aspects/internal/serializers"
)

// xblockFields is the wire order for course block records.
var xblockFields = []string{
	"org", "course_key", "location", "display_name", "xblock_data_json",
	"order", "edited_on", "dump_id", "time_last_dumped",
}

// XBlockSink flattens a course content tree into ordered block records. It is
// not an independent Sink: CourseOverviewSink drives it as part of a course
// dump, sharing the course's dump gate.
type XBlockSink struct {
	Table string

	Store modulestore.ModuleStore
	Tags  serializers.CourseTagProvider
}

// NewXBlockSink creates the course block sink.
func NewXBlockSink(store modulestore.ModuleStore, tagProvider serializers.CourseTagProvider) *XBlockSink {
	return &XBlockSink{
		Table: "course_blocks",
		Store: store,
		Tags:  tagProvider,
	}
}

// treePosition carries the walker's positional bookkeeping.
type treePosition struct {
	section    int
	subsection int
	unit       int
}

// Flatten serializes the full course structure: a depth-first pre-order walk
// of the tree with (section, subsection, unit) coordinates, then the detached
// blocks without coordinates. The output is deterministic for a given course
// structure, which keeps repeated dumps comparable.
func (s *XBlockSink) Flatten(ctx context.Context, courseKeyStr string) ([]serializers.Record, error) {
	key, err := coursekey.Parse(courseKeyStr)
	if err != nil {
		return nil, err
	}

	root, err := s.Store.GetCourse(ctx, courseKeyStr)
	if err != nil {
		return nil, fmt.Errorf("failed to load course structure for %s: %w", courseKeyStr, err)
	}

	var records []serializers.Record
	position := &treePosition{}
	order := 0

	// gradedAncestor propagates the effective grading flag down the tree: a
	// block is graded if it or any ancestor marks the subtree graded.
	var walk func(block *modulestore.XBlock, depth int, gradedAncestor bool) error
	walk = func(block *modulestore.XBlock, depth int, gradedAncestor bool) error {
		switch depth {
		case 1:
			position.section++
			position.subsection = 0
			position.unit = 0
		case 2:
			position.subsection++
			position.unit = 0
		case 3:
			position.unit++
		}

		graded := block.Graded || gradedAncestor
		record, err := s.serializeBlock(key, block, *position, order, graded, false)
		if err != nil {
			return err
		}
		records = append(records, record)
		order++

		for _, child := range block.Children {
			if err := walk(child, depth+1, graded); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root, 0, false); err != nil {
		return nil, err
	}

	detached, err := s.Store.GetDetachedBlocks(ctx, courseKeyStr)
	if err != nil {
		return nil, fmt.Errorf("failed to load detached blocks for %s: %w", courseKeyStr, err)
	}
	for _, block := range detached {
		record, err := s.serializeBlock(key, block, treePosition{}, order, block.Graded, true)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
		order++
	}

	return records, nil
}

// serializeBlock projects one course block. Detached blocks carry no tree
// coordinates.
func (s *XBlockSink) serializeBlock(key coursekey.CourseKey, block *modulestore.XBlock, position treePosition, order int, graded, detached bool) (serializers.Record, error) {
	completionMode := block.CompletionMode
	if completionMode == "" {
		completionMode = modulestore.CompletionModeUnknown
	}

	var tags map[string][]string
	if s.Tags != nil {
		tags = s.Tags.TagsForObject(block.UsageKey)
	}

	blockData := map[string]interface{}{
		"block_type":      block.BlockType,
		"detached":        boolToInt(detached),
		"graded":          boolToInt(graded),
		"completion_mode": string(completionMode),
		"section":         position.section,
		"subsection":      position.subsection,
		"unit":            position.unit,
		"tags":            tags,
	}
	blockDataJSON, err := serializers.MarshalJSON(blockData)
	if err != nil {
		return serializers.Record{}, fmt.Errorf("failed to serialize block %s: %w", block.UsageKey, err)
	}

	record := serializers.Record{
		Columns: xblockFields,
		Values: map[string]interface{}{
			"org":              key.Org,
			"course_key":       key.String(),
			"location":         block.UsageKey,
			"display_name":     block.DisplayName,
			"xblock_data_json": blockDataJSON,
			"order":            order,
			"edited_on":        block.EditedOn,
		},
	}
	serializers.Stamp(&record)
	return record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
