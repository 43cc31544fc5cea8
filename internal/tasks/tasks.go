// Package tasks is the asynchronous job boundary. Signal handlers enqueue
// dump jobs here; worker processes consume them. Retry and concurrency belong
// to JetStream (redelivery, parallel consumers), not to the pipeline.
package tasks

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
)

const (
	// StreamName is the JetStream stream capturing all dump tasks.
	StreamName = "ASPECTS"
	// SubjectDumpCourse carries course dump tasks.
	SubjectDumpCourse = "aspects.dump.course"
	// SubjectDumpData carries single-entity dump tasks.
	SubjectDumpData = "aspects.dump.data"
)

// DumpCourseTask asks a worker to dump one course.
type DumpCourseTask struct {
	CourseKey string `json:"course_key"`
}

// DumpDataTask asks a worker to dump one entity through a named sink.
type DumpDataTask struct {
	SinkModule string `json:"sink_module"`
	SinkName   string `json:"sink_name"`
	ObjectID   string `json:"object_id"`
}

// JetStreamPublisher is the JetStream surface the dispatcher needs; nats.go's
// JetStreamContext satisfies it and tests can mock it.
type JetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// Dispatcher publishes dump tasks.
type Dispatcher struct {
	js JetStreamPublisher
}

// NewDispatcher creates a Dispatcher over a JetStream context.
func NewDispatcher(js JetStreamPublisher) *Dispatcher {
	return &Dispatcher{js: js}
}

// DumpCourseToClickHouse enqueues a course dump.
func (d *Dispatcher) DumpCourseToClickHouse(courseKey string) error {
	return d.publish(SubjectDumpCourse, DumpCourseTask{CourseKey: courseKey})
}

// DumpDataToClickHouse enqueues a single-entity dump through the named sink.
func (d *Dispatcher) DumpDataToClickHouse(sinkModule, sinkName, objectID string) error {
	return d.publish(SubjectDumpData, DumpDataTask{
		SinkModule: sinkModule,
		SinkName:   sinkName,
		ObjectID:   objectID,
	})
}

func (d *Dispatcher) publish(subject string, task interface{}) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task for %s: %w", subject, err)
	}

	if err := d.ensureStream(); err != nil {
		return err
	}

	pubAck, err := d.js.Publish(subject, payload)
	if err != nil {
		return fmt.Errorf("failed to publish task to %s: %w", subject, err)
	}
	log.Printf("Published dump task to %s (stream: %s, sequence: %d)", subject, pubAck.Stream, pubAck.Sequence)
	return nil
}

// ensureStream creates the task stream if it does not exist yet (idempotent).
func (d *Dispatcher) ensureStream() error {
	_, err := d.js.StreamInfo(StreamName)
	if err == nil {
		return nil
	}

	log.Printf("Stream %s not found, attempting to create it...", StreamName)
	_, createErr := d.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"aspects.dump.>"},
		Storage:  nats.FileStorage,
	})
	if createErr != nil {
		return fmt.Errorf("failed to create NATS stream %s: %w", StreamName, createErr)
	}
	log.Printf("Successfully created NATS stream %s", StreamName)
	return nil
}
