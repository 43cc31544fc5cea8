// Package serializers maps host entities to flat dump records. Every record
// is stamped with a fresh dump_id and the dump timestamp; composite fields are
// emitted as JSON strings with all timestamps normalized to UTC ISO-8601.
package serializers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Record is one serialized entity: an ordered column list plus the values
// keyed by column name. Records are immutable once built and owned by the
// sink for the duration of a single dump call.
type Record struct {
	Columns []string
	Values  map[string]interface{}
}

// CSVRow renders the record's values in column order as CSV fields.
func (r Record) CSVRow() []string {
	row := make([]string, len(r.Columns))
	for i, col := range r.Columns {
		row[i] = EncodeValue(r.Values[col])
	}
	return row
}

// Serializer is a fixed field-projection from one entity type to a Record.
type Serializer interface {
	// Fields lists the output columns in wire order.
	Fields() []string
	// Serialize projects one entity. A missing required relation is a data
	// error and propagates; the caller isolates bad records from a batch.
	Serialize(entity interface{}) (Record, error)
}

// EncodeTime renders a timestamp as UTC ISO-8601. Naive comparisons on the
// output are chronologically ordered because the format is fixed-width.
func EncodeTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000+00:00")
}

// EncodeValue renders a single scalar for the CSV wire format.
func EncodeValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return EncodeTime(val)
	case *time.Time:
		if val == nil {
			return ""
		}
		return EncodeTime(*val)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// NormalizeJSON deep-copies a value, converting every timestamp to its UTC
// ISO-8601 string form so the result marshals identically regardless of the
// source zone. JSON-native types pass through unchanged.
func NormalizeJSON(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return EncodeTime(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return EncodeTime(*val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = NormalizeJSON(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = NormalizeJSON(item)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON marshals a value after timestamp normalization.
func MarshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(NormalizeJSON(v))
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON field: %w", err)
	}
	return string(data), nil
}

// Stamp adds the dump bookkeeping columns to an externally built record.
func Stamp(r *Record) {
	stampCommon(r.Values)
}

// stampCommon adds the dump bookkeeping columns shared by every record.
func stampCommon(values map[string]interface{}) {
	values["dump_id"] = uuid.New().String()
	values["time_last_dumped"] = EncodeTime(time.Now())
}

// commonFields are appended to every serializer's column list.
var commonFields = []string{"dump_id", "time_last_dumped"}

func withCommonFields(fields []string) []string {
	return append(append([]string{}, fields...), commonFields...)
}
