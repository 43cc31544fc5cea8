// Package coursekey parses serialized course run identifiers of the forms
// "course-v1:Org+Course+Run" and "ccx-v1:Org+Course+Run+ccx@ID".
package coursekey

import (
	"fmt"
	"strings"
)

// CourseKey is a parsed course run identifier.
type CourseKey struct {
	Org    string
	Course string
	Run    string
	// CCXID is set for ccx-v1 keys.
	CCXID string
}

// String reserializes the key.
func (k CourseKey) String() string {
	if k.CCXID != "" {
		return fmt.Sprintf("ccx-v1:%s+%s+%s+ccx@%s", k.Org, k.Course, k.Run, k.CCXID)
	}
	return fmt.Sprintf("course-v1:%s+%s+%s", k.Org, k.Course, k.Run)
}

// Parse validates and decomposes a serialized course key.
func Parse(serialized string) (CourseKey, error) {
	var body string
	var isCCX bool
	switch {
	case strings.HasPrefix(serialized, "course-v1:"):
		body = strings.TrimPrefix(serialized, "course-v1:")
	case strings.HasPrefix(serialized, "ccx-v1:"):
		body = strings.TrimPrefix(serialized, "ccx-v1:")
		isCCX = true
	default:
		return CourseKey{}, fmt.Errorf("invalid course id: '%s'", serialized)
	}

	parts := strings.Split(body, "+")
	if isCCX {
		if len(parts) != 4 || !strings.HasPrefix(parts[3], "ccx@") {
			return CourseKey{}, fmt.Errorf("invalid course id: '%s'", serialized)
		}
	} else if len(parts) != 3 {
		return CourseKey{}, fmt.Errorf("invalid course id: '%s'", serialized)
	}
	for _, part := range parts {
		if part == "" {
			return CourseKey{}, fmt.Errorf("invalid course id: '%s'", serialized)
		}
	}

	key := CourseKey{Org: parts[0], Course: parts[1], Run: parts[2]}
	if isCCX {
		key.CCXID = strings.TrimPrefix(parts[3], "ccx@")
	}
	return key, nil
}
