package model

import (
	"context"

	"github.com/syssam/mirrorm"
)

// Entity is one row of a Model. It wraps a Record and tracks which
// attributes were modified since it was loaded or saved.
type Entity struct {
	model *Model
	data  *mirrorm.Record
	dirty map[string]bool
}

// Get returns the attribute stored under key.
func (e *Entity) Get(key string) (any, bool) {
	return e.data.Get(key)
}

// Set sets an attribute and marks it modified.
func (e *Entity) Set(key string, v any) *Entity {
	e.data.Set(key, v)
	e.dirty[key] = true
	return e
}

// ID returns the primary-key value, or nil when unsaved.
func (e *Entity) ID() any {
	return e.data.Value(e.model.pk)
}

// Record returns a copy of the attributes.
func (e *Entity) Record() *mirrorm.Record {
	return e.data.Clone()
}

// Dirty reports whether any attribute was modified.
func (e *Entity) Dirty() bool {
	return len(e.dirty) > 0
}

// Save updates the row when the entity's key exists on the primary and
// creates it otherwise. After a create the entity holds the stored row,
// including its generated key.
func (e *Entity) Save(ctx context.Context) error {
	m := e.model
	if err := m.ready("save"); err != nil {
		return err
	}
	if id := e.ID(); isSet(id) {
		rec, err := m.find(ctx, id)
		if err != nil {
			return err
		}
		if rec != nil {
			return e.Update(ctx, nil)
		}
	}
	created, err := m.Create(ctx, e.data)
	if created != nil {
		e.data = created.data
		clear(e.dirty)
	}
	return err
}

// Update writes data, or every non-key attribute when data is empty and
// some attribute was modified, to the row on every backend. The entity is
// then overwritten with the primary's row. Without anything to write it is
// a no-op. Nil values are written as NULL.
func (e *Entity) Update(ctx context.Context, data *mirrorm.Record) (err error) {
	const op = "update"
	m := e.model
	if err := m.ready(op); err != nil {
		m.log(ctx, op, e.ID(), err)
		return err
	}
	id := e.ID()
	if !isSet(id) {
		err := mirrorm.NewValidationError(op, m.pk, "no "+m.pk+" value found for update")
		m.log(ctx, op, id, err)
		return err
	}
	values := data.Clone()
	if values.Len() == 0 {
		if !e.Dirty() {
			return nil
		}
		values = e.data.Clone()
	}
	values.Delete(m.pk)
	if values.Len() == 0 {
		return nil
	}
	defer func() { m.log(ctx, op, id, err) }()
	rec, err := m.update(ctx, id, values)
	if rec != nil {
		e.data = rec
		clear(e.dirty)
	}
	return err
}

// Delete deletes the entity's row on every backend and reports whether
// the primary deleted it.
func (e *Entity) Delete(ctx context.Context) (bool, error) {
	return e.model.delete(ctx, "delete", e.ID())
}

// String renders the entity as table{column: value, ...}.
func (e *Entity) String() string {
	return e.model.table + e.data.String()
}
