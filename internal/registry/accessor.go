package registry

import (
	"time"

	"gorm.io/gorm"
)

// AccessorConfig describes how to treat one model type.
type AccessorConfig[T any] struct {
	// PrimaryKeyColumn is the unique-key column, e.g. "id".
	PrimaryKeyColumn string
	// PrimaryKey extracts the unique key as a string.
	PrimaryKey func(*T) string
	// LastModified extracts the modification timestamp. Nil means the model
	// has no modification timestamp and single-item dumps are always skipped.
	LastModified func(*T) (time.Time, bool)
	// Preloads lists relations to eager-load on every query, mirroring the
	// select_related calls the sinks need for serialization.
	Preloads []string
}

// Accessor is the gorm-backed ModelAccessor implementation.
type Accessor[T any] struct {
	db  *gorm.DB
	cfg AccessorConfig[T]
}

// NewAccessor builds an Accessor for the model type T.
func NewAccessor[T any](db *gorm.DB, cfg AccessorConfig[T]) *Accessor[T] {
	if cfg.PrimaryKeyColumn == "" {
		cfg.PrimaryKeyColumn = "id"
	}
	return &Accessor[T]{db: db, cfg: cfg}
}

// DB returns a fresh session scoped to the model with preloads applied.
func (a *Accessor[T]) DB() *gorm.DB {
	q := a.db.Session(&gorm.Session{NewDB: true}).Model(new(T))
	for _, preload := range a.cfg.Preloads {
		q = q.Preload(preload)
	}
	return q
}

// NewSlice returns a *[]T for gorm Find calls.
func (a *Accessor[T]) NewSlice() interface{} {
	return &[]T{}
}

// Items flattens a *[]T into entity pointers.
func (a *Accessor[T]) Items(slice interface{}) []interface{} {
	rows := slice.(*[]T)
	items := make([]interface{}, len(*rows))
	for i := range *rows {
		items[i] = &(*rows)[i]
	}
	return items
}

// PrimaryKeyColumn returns the configured unique-key column.
func (a *Accessor[T]) PrimaryKeyColumn() string {
	return a.cfg.PrimaryKeyColumn
}

// PrimaryKey returns the entity's unique key.
func (a *Accessor[T]) PrimaryKey(entity interface{}) string {
	return a.cfg.PrimaryKey(entity.(*T))
}

// LastModified returns the entity's modification timestamp, if the model has one.
func (a *Accessor[T]) LastModified(entity interface{}) (time.Time, bool) {
	if a.cfg.LastModified == nil {
		return time.Time{}, false
	}
	return a.cfg.LastModified(entity.(*T))
}

// FindByPK loads one entity by unique key. gorm.ErrRecordNotFound passes
// through so callers can distinguish a missing row.
func (a *Accessor[T]) FindByPK(id string) (interface{}, error) {
	var entity T
	err := a.DB().Where(a.cfg.PrimaryKeyColumn+" = ?", id).First(&entity).Error
	if err != nil {
		return nil, err
	}
	return &entity, nil
}
