// Package modulestore defines the host content-store collaborator: the
// in-memory course structure the course dump walks. The host owns the tree;
// this plugin only reads it for the duration of one dump call.
package modulestore

import "context"

// CompletionMode is a block's declared completion behavior.
type CompletionMode string

const (
	CompletionModeUnknown     CompletionMode = "unknown"
	CompletionModeCompletable CompletionMode = "completable"
	CompletionModeAggregator  CompletionMode = "aggregator"
	CompletionModeExcluded    CompletionMode = "excluded"
)

// XBlock is one node in a course content tree. Children are ordered; the
// parent reference is structural and non-owning.
type XBlock struct {
	// UsageKey is the block's location identifier, e.g.
	// "block-v1:edX+DemoX+2024+type@vertical+block@intro".
	UsageKey string
	// BlockType is the block's category: "course", "chapter", "sequential",
	// "vertical", "problem", ...
	BlockType string
	// DisplayName is the human-readable title.
	DisplayName string
	// Graded marks the block (or its grading subtree) as graded.
	Graded bool
	// CompletionMode is the block's declared completion behavior; empty maps
	// to CompletionModeUnknown.
	CompletionMode CompletionMode
	// EditedOn is the block's last edit timestamp, when the store tracks it.
	EditedOn string
	// Children are the block's ordered structural children.
	Children []*XBlock
}

// detachedBlockTypes are the block categories that never attach to the course
// tree; stores use it to select the blocks GetDetachedBlocks returns.
var detachedBlockTypes = []string{"about", "course_info", "static_tab"}

// DetachedBlockTypes returns the block categories considered detached.
func DetachedBlockTypes() []string {
	out := make([]string, len(detachedBlockTypes))
	copy(out, detachedBlockTypes)
	return out
}

// ModuleStore provides read access to course structures.
type ModuleStore interface {
	// GetCourse returns the root block of the course tree.
	GetCourse(ctx context.Context, courseKey string) (*XBlock, error)
	// GetDetachedBlocks returns course blocks not reachable from the root
	// (library-sourced content and other detached types).
	GetDetachedBlocks(ctx context.Context, courseKey string) ([]*XBlock, error)
}
