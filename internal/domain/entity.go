package domain

import (
	"time"

	"github.com/google/uuid"
)

// Entity represents a persisted record with pluggable extensions
type Entity struct {
	ID             uuid.UUID
	ParentID       *uuid.UUID // weak relation, used for lookup and filtering only
	Type           string
	Name           string
	Description    string
	Properties     map[string]string
	Extensions     *ExtensionsMap
	LastModifiedBy string
	LastModified   time.Time
}

// NewEntity creates a new entity with a freshly assigned identifier
func NewEntity(entityType, name string) Entity {
	return Entity{
		ID:         uuid.New(),
		Type:       entityType,
		Name:       name,
		Properties: map[string]string{},
		Extensions: NewExtensionsMap(),
	}
}

// WithName returns a new entity with an updated name
func (e Entity) WithName(name string) Entity {
	clone := e.Clone()
	clone.Name = name
	return clone
}

// WithDescription returns a new entity with an updated description
func (e Entity) WithDescription(description string) Entity {
	clone := e.Clone()
	clone.Description = description
	return clone
}

// WithParent returns a new entity referencing the given parent
func (e Entity) WithParent(parentID uuid.UUID) Entity {
	clone := e.Clone()
	clone.ParentID = &parentID
	return clone
}

// WithoutParent returns a new entity with no parent reference
func (e Entity) WithoutParent() Entity {
	clone := e.Clone()
	clone.ParentID = nil
	return clone
}

// WithProperty returns a new entity with an added/updated property
func (e Entity) WithProperty(key, value string) Entity {
	clone := e.Clone()
	clone.Properties[key] = value
	return clone
}

// WithoutProperty returns a new entity without the specified property
func (e Entity) WithoutProperty(key string) Entity {
	clone := e.Clone()
	delete(clone.Properties, key)
	return clone
}

// WithExtension returns a new entity carrying ext, replacing any extension of the same type
func (e Entity) WithExtension(ext Extension) Entity {
	clone := e.Clone()
	clone.Extensions.Put(ext)
	return clone
}

// WithoutExtension returns a new entity without the extension of the given type
func (e Entity) WithoutExtension(typeID string) Entity {
	clone := e.Clone()
	clone.Extensions.Delete(typeID)
	return clone
}

// WithModification returns a new entity stamped with the acting user and time
func (e Entity) WithModification(userID string, at time.Time) Entity {
	clone := e.Clone()
	clone.LastModifiedBy = userID
	clone.LastModified = at
	return clone
}

// IsChildOf reports whether the entity references parentID as its parent
func (e Entity) IsChildOf(parentID uuid.UUID) bool {
	return e.ParentID != nil && *e.ParentID == parentID
}

// Property returns a property value and whether it was set
func (e Entity) Property(key string) (string, bool) {
	value, ok := e.Properties[key]
	return value, ok
}

// Clone returns a deep copy that shares no maps or pointers with e
func (e Entity) Clone() Entity {
	clone := e
	if e.ParentID != nil {
		parent := *e.ParentID
		clone.ParentID = &parent
	}
	clone.Properties = copyProperties(e.Properties)
	clone.Extensions = e.Extensions.Clone()
	return clone
}

// copyProperties creates a copy of the properties map so entities never share it
func copyProperties(properties map[string]string) map[string]string {
	newProperties := make(map[string]string, len(properties))
	for k, v := range properties {
		newProperties[k] = v
	}
	return newProperties
}
