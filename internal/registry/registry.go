// Package registry resolves logical model names ("user_profile",
// "course_overviews", ...) to concrete model accessors. Bindings come from
// configuration; accessors are registered once at process startup. A failed
// resolution is an absence signal, never an error: callers treat it as
// "feature inactive in this deployment" and no-op.
package registry

import (
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/openedx/platform-plugin-aspects/internal/config"
)

// ModelAccessor is the handle the sinks use to query a registered model
// without knowing its concrete type.
type ModelAccessor interface {
	// DB returns a fresh query scoped to the model, with its default
	// relation preloads applied.
	DB() *gorm.DB
	// NewSlice returns a pointer to an empty slice of the model type,
	// suitable for gorm Find calls.
	NewSlice() interface{}
	// Items flattens a slice produced by NewSlice into entity pointers.
	Items(slice interface{}) []interface{}
	// PrimaryKeyColumn is the unique-key column name.
	PrimaryKeyColumn() string
	// PrimaryKey returns the entity's unique key as a string.
	PrimaryKey(entity interface{}) string
	// LastModified returns the entity's modification timestamp, or false
	// when the model carries none.
	LastModified(entity interface{}) (time.Time, bool)
	// FindByPK loads a single entity by unique key.
	FindByPK(id string) (interface{}, error)
}

// Registry holds the accessor table and the logical-name bindings.
type Registry struct {
	mu        sync.RWMutex
	bindings  map[string]config.ModelBinding
	accessors map[string]ModelAccessor
}

// New creates a Registry with the given logical-name bindings.
func New(bindings map[string]config.ModelBinding) *Registry {
	return &Registry{
		bindings:  bindings,
		accessors: make(map[string]ModelAccessor),
	}
}

// Register installs an accessor under a module/model pair. Call during
// process startup, before any sink runs.
func (r *Registry) Register(module, model string, accessor ModelAccessor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accessors[module+"."+model] = accessor
}

// Resolve looks up the accessor bound to a logical model name. Every failure
// path logs at error level and returns false; Resolve never panics.
func (r *Registry) Resolve(logicalName string) (ModelAccessor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	binding, ok := r.bindings[logicalName]
	if !ok {
		log.Printf("Error: unable to find model config for %s", logicalName)
		return nil, false
	}
	if binding.Module == "" {
		log.Printf("Error: module was not specified in %s", logicalName)
		return nil, false
	}
	if binding.Model == "" {
		log.Printf("Error: model was not specified in %s", logicalName)
		return nil, false
	}

	accessor, ok := r.accessors[binding.Module+"."+binding.Model]
	if !ok {
		log.Printf("Error: unable to load model %s.%s", binding.Module, binding.Model)
		return nil, false
	}
	return accessor, true
}
