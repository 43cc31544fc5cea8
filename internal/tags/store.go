package tags

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/openedx/platform-plugin-aspects/internal/models"
)

// GormTagStore is the default TagStore, reading the host's tagging tables.
type GormTagStore struct {
	db *gorm.DB
}

// NewGormTagStore creates a store over the host database.
func NewGormTagStore(db *gorm.DB) *GormTagStore {
	return &GormTagStore{db: db}
}

// ObjectTags returns the explicit tags applied to an object, with taxonomy
// and tag relations preloaded.
func (s *GormTagStore) ObjectTags(objectID string) ([]models.ObjectTag, error) {
	var objectTags []models.ObjectTag
	err := s.db.
		Preload("Taxonomy").
		Preload("Tag").
		Where("object_id = ?", objectID).
		Order("id asc").
		Find(&objectTags).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query object tags for %s: %w", objectID, err)
	}
	return objectTags, nil
}

// TagByID loads one tag with its taxonomy. Returns nil (no error) when the
// tag does not exist.
func (s *GormTagStore) TagByID(id uint) (*models.Tag, error) {
	var tag models.Tag
	err := s.db.Preload("Taxonomy").First(&tag, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query tag %d: %w", id, err)
	}
	return &tag, nil
}
