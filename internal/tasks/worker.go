package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/openedx/platform-plugin-aspects/internal/sinks"
)

// defaultAckWait bounds how long a dump may run before JetStream considers
// the task lost and redelivers it.
const defaultAckWait = 10 * time.Minute

// JetStreamSubscriber is the JetStream surface the worker needs.
type JetStreamSubscriber interface {
	QueueSubscribe(subj, queue string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// Worker consumes dump tasks and runs the named sinks. Each task executes
// synchronously to completion or error; a failed task is Nak'd so JetStream
// redelivery owns the retry/backoff policy.
type Worker struct {
	js         JetStreamSubscriber
	courseSink *sinks.CourseOverviewSink
	sinks      map[string]sinks.Sink

	subscriptions []*nats.Subscription
}

// NewWorker creates a Worker. dataSinks is keyed by "<module>.<sink name>",
// matching the identifiers carried in DumpDataTask messages.
func NewWorker(js JetStreamSubscriber, courseSink *sinks.CourseOverviewSink, dataSinks []sinks.Sink) *Worker {
	byName := make(map[string]sinks.Sink, len(dataSinks))
	for _, sink := range dataSinks {
		byName[sinks.Module+"."+sink.Name()] = sink
	}
	return &Worker{
		js:         js,
		courseSink: courseSink,
		sinks:      byName,
	}
}

// Start subscribes the worker's durable queue consumers. Non-blocking; tasks
// run on NATS delivery goroutines.
func (w *Worker) Start() error {
	courseSub, err := w.js.QueueSubscribe(
		SubjectDumpCourse, "aspects-dump-course", w.handleDumpCourse,
		nats.ManualAck(), nats.Durable("aspects-dump-course"), nats.AckWait(defaultAckWait),
	)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, courseSub)

	dataSub, err := w.js.QueueSubscribe(
		SubjectDumpData, "aspects-dump-data", w.handleDumpData,
		nats.ManualAck(), nats.Durable("aspects-dump-data"), nats.AckWait(defaultAckWait),
	)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, dataSub)

	log.Println("Dump worker subscribed to task subjects.")
	return nil
}

// Stop drains the worker's subscriptions.
func (w *Worker) Stop() {
	for _, sub := range w.subscriptions {
		if err := sub.Drain(); err != nil {
			log.Printf("Error draining subscription %s: %v", sub.Subject, err)
		}
	}
}

func (w *Worker) handleDumpCourse(msg *nats.Msg) {
	var task DumpCourseTask
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		log.Printf("Error parsing dump course task, discarding: %v", err)
		w.terminate(msg)
		return
	}

	err := w.courseSink.DumpCourse(context.Background(), task.CourseKey)
	if err != nil {
		if errors.Is(err, sinks.ErrCourseNotFound) {
			// A bad course key never becomes valid; retrying is pointless.
			log.Printf("Error dumping course %s, discarding: %v", task.CourseKey, err)
			w.terminate(msg)
			return
		}
		log.Printf("Error dumping course %s, will be retried: %v", task.CourseKey, err)
		w.nak(msg)
		return
	}
	w.ack(msg)
}

func (w *Worker) handleDumpData(msg *nats.Msg) {
	var task DumpDataTask
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		log.Printf("Error parsing dump data task, discarding: %v", err)
		w.terminate(msg)
		return
	}

	sink, ok := w.sinks[task.SinkModule+"."+task.SinkName]
	if !ok {
		log.Printf("Error: unknown sink %s.%s, discarding task for object %s", task.SinkModule, task.SinkName, task.ObjectID)
		w.terminate(msg)
		return
	}

	if err := sink.Dump(context.Background(), task.ObjectID); err != nil {
		log.Printf("Error dumping %s %s, will be retried: %v", sink.ModelName(), task.ObjectID, err)
		w.nak(msg)
		return
	}
	w.ack(msg)
}

func (w *Worker) ack(msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		log.Printf("Error acking task message: %v", err)
	}
}

func (w *Worker) nak(msg *nats.Msg) {
	if err := msg.Nak(); err != nil {
		log.Printf("Error nacking task message: %v", err)
	}
}

func (w *Worker) terminate(msg *nats.Msg) {
	if err := msg.Term(); err != nil {
		log.Printf("Error terminating task message: %v", err)
	}
}
