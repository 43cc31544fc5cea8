// Package handlers exposes the plugin's HTTP surface: guest token minting for
// embedded dashboards, manual dump triggers, and a health probe.
package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openedx/platform-plugin-aspects/internal/config"
	"github.com/openedx/platform-plugin-aspects/internal/coursekey"
)

// TokenMinter mints Superset guest tokens.
type TokenMinter interface {
	GuestToken(username string, course coursekey.CourseKey, dashboards []config.Dashboard, filters []string) (string, error)
}

// AccessChecker answers whether a user may view a course's dashboards.
// Implementations default to deny: any error means no access.
type AccessChecker interface {
	CanAccessCourse(username, courseKey string) (bool, error)
}

// CourseLocator answers whether a course exists on the host platform.
type CourseLocator interface {
	CourseExists(courseKey string) (bool, error)
}

// Enqueuer is the task dispatch boundary for the manual dump triggers.
type Enqueuer interface {
	DumpCourseToClickHouse(courseKey string) error
	DumpDataToClickHouse(sinkModule, sinkName, objectID string) error
}

// Handler serves the plugin's HTTP endpoints.
type Handler struct {
	cfg      *config.Config
	superset TokenMinter
	access   AccessChecker
	courses  CourseLocator
	enqueuer Enqueuer
}

// NewHandler creates a Handler with its collaborators.
func NewHandler(cfg *config.Config, superset TokenMinter, access AccessChecker, courses CourseLocator, enqueuer Enqueuer) *Handler {
	return &Handler{
		cfg:      cfg,
		superset: superset,
		access:   access,
		courses:  courses,
		enqueuer: enqueuer,
	}
}

// RegisterRoutes attaches all endpoints to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/superset_guest_token/:course_id", h.GuestToken)

	api := router.Group("/api/v1")
	{
		api.POST("/dump/course", h.TriggerCourseDump)
		api.POST("/dump/data", h.TriggerDataDump)
	}
}

// Health reports service liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// GuestToken mints a Superset guest token scoped to one course. The caller's
// identity arrives from the platform gateway in the X-Edx-User header.
func (h *Handler) GuestToken(c *gin.Context) {
	username := c.GetHeader("X-Edx-User")
	if username == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "authentication required"})
		return
	}

	courseID := c.Param("course_id")
	course, err := coursekey.Parse(courseID)
	if err != nil {
		// A malformed key is indistinguishable from a missing course.
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}

	exists, err := h.courses.CourseExists(courseID)
	if err != nil {
		log.Printf("Error checking course %s: %v", courseID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}

	allowed, err := h.access.CanAccessCourse(username, courseID)
	if err != nil {
		log.Printf("Error checking access for %s on %s: %v", username, courseID, err)
		allowed = false
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "course access denied"})
		return
	}

	token, err := h.superset.GuestToken(username, course, h.cfg.Dashboards, h.cfg.Filters())
	if err != nil {
		log.Printf("Error fetching guest token for %s on %s: %v", username, courseID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to fetch guest token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"guestToken": token})
}

type courseDumpRequest struct {
	CourseKey string `json:"course_key" binding:"required"`
}

// TriggerCourseDump enqueues a course dump on demand.
func (h *Handler) TriggerCourseDump(c *gin.Context) {
	var req courseDumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := coursekey.Parse(req.CourseKey); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.enqueuer.DumpCourseToClickHouse(req.CourseKey); err != nil {
		log.Printf("Error queueing course dump for %s: %v", req.CourseKey, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue course dump"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "course_key": req.CourseKey})
}

type dataDumpRequest struct {
	SinkModule string `json:"sink_module" binding:"required"`
	SinkName   string `json:"sink_name" binding:"required"`
	ObjectID   string `json:"object_id" binding:"required"`
}

// TriggerDataDump enqueues a single-entity dump on demand.
func (h *Handler) TriggerDataDump(c *gin.Context) {
	var req dataDumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.enqueuer.DumpDataToClickHouse(req.SinkModule, req.SinkName, req.ObjectID); err != nil {
		log.Printf("Error queueing %s dump for object %s: %v", req.SinkName, req.ObjectID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue data dump"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "sink_name": req.SinkName, "object_id": req.ObjectID})
}
