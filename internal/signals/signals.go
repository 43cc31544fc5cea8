// Package signals translates host-platform lifecycle events into asynchronous
// dump jobs. Handlers are connected explicitly from main; nothing registers
// itself at import time.
package signals

import (
	"log"
	"strconv"

	"github.com/openedx/platform-plugin-aspects/internal/models"
	"github.com/openedx/platform-plugin-aspects/internal/sinks"
)

// Enqueuer is the task dispatch boundary the handlers publish through.
type Enqueuer interface {
	DumpCourseToClickHouse(courseKey string) error
	DumpDataToClickHouse(sinkModule, sinkName, objectID string) error
}

// Handlers holds the connected signal handlers.
type Handlers struct {
	enqueuer Enqueuer
}

// Connect wires the handlers to the task dispatch boundary. The host calls
// the handler methods from its own event plumbing.
func Connect(enqueuer Enqueuer) *Handlers {
	log.Println("Connecting aspects signal handlers...")
	return &Handlers{enqueuer: enqueuer}
}

// ReceiveCoursePublish queues a course dump. Course publish events fire after
// the publish has completed, so no commit deferral is needed.
func (h *Handlers) ReceiveCoursePublish(courseKey string) {
	if err := h.enqueuer.DumpCourseToClickHouse(courseKey); err != nil {
		log.Printf("Error queueing course dump for %s: %v", courseKey, err)
	}
}

// OnUserProfileUpdated queues a profile dump once the saving transaction
// commits.
func (h *Handlers) OnUserProfileUpdated(hooks *TxHooks, profile *models.UserProfile) {
	id := strconv.FormatUint(uint64(profile.ID), 10)
	hooks.AfterCommit(func() {
		h.enqueueDump("UserProfileSink", id)
	})
}

// OnExternalIDSaved queues an external ID dump once the saving transaction
// commits.
func (h *Handlers) OnExternalIDSaved(hooks *TxHooks, externalID *models.ExternalID) {
	id := strconv.FormatUint(uint64(externalID.ID), 10)
	hooks.AfterCommit(func() {
		h.enqueueDump("ExternalIDSink", id)
	})
}

// OnEnrollmentChanged queues an enrollment dump once the saving transaction
// commits.
func (h *Handlers) OnEnrollmentChanged(hooks *TxHooks, enrollment *models.CourseEnrollment) {
	id := strconv.FormatUint(uint64(enrollment.ID), 10)
	hooks.AfterCommit(func() {
		h.enqueueDump("CourseEnrollmentSink", id)
	})
}

// OnUserRetirement queues the retirement dump. The retirement event is
// emitted by the host after its own bookkeeping has been committed.
func (h *Handlers) OnUserRetirement(user *models.User) {
	h.enqueueDump("UserRetirementSink", strconv.FormatUint(uint64(user.ID), 10))
}

func (h *Handlers) enqueueDump(sinkName, objectID string) {
	if err := h.enqueuer.DumpDataToClickHouse(sinks.Module, sinkName, objectID); err != nil {
		log.Printf("Error queueing %s dump for object %s: %v", sinkName, objectID, err)
	}
}
