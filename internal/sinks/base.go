// Package sinks implements the change-data-capture dump pipeline: deciding
// whether an entity needs exporting, serializing it, and shipping batches to
// ClickHouse with timestamp-gated, at-least-once semantics.
package sinks

import (
	"context"
	"fmt"
	"log"

	"github.com/openedx/platform-plugin-aspects/internal/clickhouse"
	"github.com/openedx/platform-plugin-aspects/internal/registry"
	"github.com/openedx/platform-plugin-aspects/internal/serializers"
)

// FetchSize is the page size for bulk dumps.
const FetchSize = 1000

// Module identifies this package in task messages, paired with a sink name to
// pick the sink a queued job should run.
const Module = "github.com/openedx/platform-plugin-aspects/internal/sinks"

// Sink dumps one entity type to the analytical store.
type Sink interface {
	// Name is the sink's registered name, e.g. "UserProfileSink".
	Name() string
	// ModelName is the logical model the sink reads.
	ModelName() string
	// Dump exports a single entity by unique key.
	Dump(ctx context.Context, id string) error
	// DumpAll pages through every row of the model in unique-key order,
	// optionally resuming after startPK.
	DumpAll(ctx context.Context, startPK string) error
}

// ModelSink is the base model-backed sink. Concrete sinks embed it and supply
// their static configuration.
type ModelSink struct {
	// Model is the logical model name resolved through the registry.
	Model string
	// UniqueKey must identify exactly one row per dump cycle.
	UniqueKey string
	// Table is the destination ClickHouse table.
	Table string
	// TimestampField is the checkpoint column in the destination table.
	TimestampField string
	// SinkName is the registered sink name used in task messages.
	SinkName string
	// DisplayName is the human-readable name used in logs.
	DisplayName string

	Serializer serializers.Serializer
	Registry   *registry.Registry
	ClickHouse *clickhouse.Client

	// AlwaysDump bypasses timestamp gating, for sinks whose dumps are driven
	// purely by domain events (enrollment changes, retirements).
	AlwaysDump bool

	// AfterDumpItem runs after a successful single-item dump, for sinks that
	// cascade related objects.
	AfterDumpItem func(ctx context.Context, entity interface{}) error
}

// Name returns the sink's registered name.
func (s *ModelSink) Name() string { return s.SinkName }

// ModelName returns the logical model name.
func (s *ModelSink) ModelName() string { return s.Model }

// ShouldDumpItem decides whether an entity needs (re-)exporting. It is
// idempotent and side-effect-free: the only I/O is a read of the store's
// checkpoint. The decision compares canonical ISO timestamps lexically, which
// orders identically to chronological comparison.
func (s *ModelSink) ShouldDumpItem(ctx context.Context, accessor registry.ModelAccessor, entity interface{}) (bool, string, error) {
	if s.AlwaysDump {
		return true, "sink always dumps", nil
	}

	modified, ok := accessor.LastModified(entity)
	if !ok {
		return false, "no modification timestamp", nil
	}

	id := accessor.PrimaryKey(entity)
	lastDumped, err := s.ClickHouse.LastDumpedTimestamp(ctx, s.Table, s.TimestampField, s.UniqueKey, id)
	if err != nil {
		return false, "", err
	}
	if lastDumped == "" {
		return true, fmt.Sprintf("%s is not present in ClickHouse", id), nil
	}

	itemTimestamp := serializers.EncodeTime(modified)
	if itemTimestamp > lastDumped {
		return true, fmt.Sprintf("pending changes since last dump: %s > %s", itemTimestamp, lastDumped), nil
	}
	return false, fmt.Sprintf("no changes since last dump: %s <= %s", itemTimestamp, lastDumped), nil
}

// Dump exports a single entity: gate, serialize, one-record batch.
func (s *ModelSink) Dump(ctx context.Context, id string) error {
	accessor, ok := s.Registry.Resolve(s.Model)
	if !ok {
		log.Printf("%s: model %s is not available, skipping dump of %s", s.DisplayName, s.Model, id)
		return nil
	}

	entity, err := accessor.FindByPK(id)
	if err != nil {
		return fmt.Errorf("%s: failed to load %s %s: %w", s.DisplayName, s.Model, id, err)
	}

	shouldDump, reason, err := s.ShouldDumpItem(ctx, accessor, entity)
	if err != nil {
		return err
	}
	if !shouldDump {
		log.Printf("%s: skipping dump of %s %s (%s)", s.DisplayName, s.Model, id, reason)
		return nil
	}
	log.Printf("%s: dumping %s %s (%s)", s.DisplayName, s.Model, id, reason)

	record, err := s.Serializer.Serialize(entity)
	if err != nil {
		return fmt.Errorf("%s: failed to serialize %s %s: %w", s.DisplayName, s.Model, id, err)
	}
	if err := s.ClickHouse.BulkInsert(ctx, s.Table, record.Columns, [][]string{record.CSVRow()}); err != nil {
		return err
	}

	if s.AfterDumpItem != nil {
		return s.AfterDumpItem(ctx, entity)
	}
	return nil
}

// DumpAll pages through every row of the model in ascending unique-key order,
// starting after startPK when given. Each page is serialized and POSTed as one
// batch; a failed batch aborts the whole dump with nothing rolled back. The
// last successfully dumped key is logged after every page to support resume.
func (s *ModelSink) DumpAll(ctx context.Context, startPK string) error {
	accessor, ok := s.Registry.Resolve(s.Model)
	if !ok {
		log.Printf("%s: model %s is not available, skipping bulk dump", s.DisplayName, s.Model)
		return nil
	}

	lastPK := startPK
	total := 0
	for {
		items, err := s.fetchPage(accessor, lastPK)
		if err != nil {
			return fmt.Errorf("%s: failed to fetch page after %q: %w", s.DisplayName, lastPK, err)
		}
		if len(items) == 0 {
			break
		}

		columns := s.Serializer.Fields()
		rows := make([][]string, 0, len(items))
		for _, item := range items {
			record, err := s.Serializer.Serialize(item)
			if err != nil {
				return fmt.Errorf("%s: failed to serialize %s %s: %w",
					s.DisplayName, s.Model, accessor.PrimaryKey(item), err)
			}
			rows = append(rows, record.CSVRow())
		}

		if err := s.ClickHouse.BulkInsert(ctx, s.Table, columns, rows); err != nil {
			return err
		}

		lastPK = accessor.PrimaryKey(items[len(items)-1])
		total += len(items)
		log.Printf("%s: dumped %d rows to %s (last key %s, %d total)",
			s.DisplayName, len(rows), s.Table, lastPK, total)

		if len(items) < FetchSize {
			break
		}
	}

	log.Printf("%s: bulk dump complete, %d rows sent to %s", s.DisplayName, total, s.Table)
	return nil
}

// fetchPage reads one page of rows in unique-key order, after startPK.
func (s *ModelSink) fetchPage(accessor registry.ModelAccessor, startPK string) ([]interface{}, error) {
	query := accessor.DB().Order(s.UniqueKey + " asc").Limit(FetchSize)
	if startPK != "" {
		query = query.Where(s.UniqueKey+" > ?", startPK)
	}
	slice := accessor.NewSlice()
	if err := query.Find(slice).Error; err != nil {
		return nil, err
	}
	return accessor.Items(slice), nil
}
