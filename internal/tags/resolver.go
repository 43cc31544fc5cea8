// Package tags computes the closed set of classification tags applied to a
// piece of content, including every transitive ancestor tag.
package tags

import (
	"errors"
	"log"

	"gorm.io/gorm"

	"github.com/openedx/platform-plugin-aspects/internal/models"
)

// TagStore is the tagging subsystem collaborator. Implementations return
// empty results (not errors) when a lookup finds nothing.
type TagStore interface {
	// ObjectTags returns the explicit tags applied to an object.
	ObjectTags(objectID string) ([]models.ObjectTag, error)
	// TagByID loads a tag with its taxonomy, or nil when absent.
	TagByID(id uint) (*models.Tag, error)
}

// Resolver walks object tags and their parent chains.
type Resolver struct {
	store TagStore
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store TagStore) *Resolver {
	return &Resolver{store: store}
}

// TagsForObject returns every explicit tag on the object plus every
// transitive ancestor tag, grouped by taxonomy name, deduplicated. It never
// fails: an absent or erroring tagging subsystem yields an empty map.
func (r *Resolver) TagsForObject(objectID string) map[string][]string {
	serialized := make(map[string][]string)
	if r == nil || r.store == nil {
		return serialized
	}

	objectTags, err := r.store.ObjectTags(objectID)
	if err != nil {
		log.Printf("Error fetching object tags for %s: %v", objectID, err)
		return serialized
	}

	seen := make(map[uint]bool)
	for _, objectTag := range objectTags {
		if objectTag.TagID == nil {
			// Free-text tag with no taxonomy tag row.
			if objectTag.Taxonomy != nil && objectTag.Value != "" {
				addTag(serialized, objectTag.Taxonomy.Name, objectTag.Value)
			}
			continue
		}
		r.collectLineage(*objectTag.TagID, objectID, seen, func(tag *models.Tag) {
			taxonomyName := ""
			if tag.Taxonomy != nil {
				taxonomyName = tag.Taxonomy.Name
			}
			addTag(serialized, taxonomyName, tag.Value)
		})
	}
	return serialized
}

// TagLineage returns the tag's value chain from the taxonomy root down to the
// tag itself. Used by the tag serializers.
func (r *Resolver) TagLineage(tagID uint) []string {
	var chain []string
	seen := make(map[uint]bool)
	r.collectLineage(tagID, "", seen, func(tag *models.Tag) {
		// collectLineage visits leaf-first; prepend to get root-first order.
		chain = append([]string{tag.Value}, chain...)
	})
	return chain
}

// collectLineage visits the tag and each of its ancestors exactly once.
// A parent chain that revisits a tag is corrupt data: it is logged and the
// walk truncates instead of looping.
func (r *Resolver) collectLineage(tagID uint, objectID string, seen map[uint]bool, visit func(*models.Tag)) {
	walked := make(map[uint]bool)
	currentID := tagID
	for {
		if walked[currentID] {
			log.Printf("Error: tag lineage cycle detected at tag %d (object %q); truncating walk", currentID, objectID)
			return
		}
		walked[currentID] = true

		tag, err := r.store.TagByID(currentID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("Error loading tag %d: %v", currentID, err)
			}
			return
		}
		if tag == nil {
			return
		}
		if !seen[tag.ID] {
			seen[tag.ID] = true
			visit(tag)
		}
		if tag.ParentID == nil {
			return
		}
		currentID = *tag.ParentID
	}
}

func addTag(serialized map[string][]string, taxonomyName, value string) {
	for _, existing := range serialized[taxonomyName] {
		if existing == value {
			return
		}
	}
	serialized[taxonomyName] = append(serialized[taxonomyName], value)
}
