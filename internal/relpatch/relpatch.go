// Package relpatch reconciles nested child collections while a parent entity
// is patched. Plans are computed in memory and persisted through the
// caller's transaction; nothing here commits on its own.
package relpatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// Collection exposes one parent-to-children relationship.
type Collection[C any] interface {
	Children() []*C
	SetChildren([]*C)
}

// Slice adapts a child slice field to Collection.
type Slice[C any] struct{ P *[]*C }

func (s Slice[C]) Children() []*C { return *s.P }

func (s Slice[C]) SetChildren(c []*C) { *s.P = c }

// Spec tells the engine how to identify, build and patch a child.
type Spec[C any] struct {
	ID    func(*C) uuid.UUID
	New   func() *C
	Apply func(*C, pg.Patch) error
}

// TableSpec derives a Spec from the child's table mapping. Foreign keys back
// to the parent are read-only columns there, so payloads naming them are
// rejected by Apply.
func TableSpec[C any](t *pg.Table[C]) Spec[C] {
	return Spec[C]{
		ID:    func(c *C) uuid.UUID { return t.Model(c).ID },
		New:   func() *C { return new(C) },
		Apply: t.Apply,
	}
}

// Plan lists the child writes produced by a reconciliation.
type Plan[C any] struct {
	Updated  []*C
	Inserted []*C
	Removed  []*C

	id func(*C) uuid.UUID
}

// Empty reports whether the plan writes nothing.
func (p Plan[C]) Empty() bool {
	return len(p.Updated) == 0 && len(p.Inserted) == 0 && len(p.Removed) == 0
}

// OneToMany matches incoming payloads to existing children by id. Matches
// are patched in place, everything else becomes a new child. With replace
// set, existing children that no payload referenced are dropped from the
// collection and reported as removed; otherwise they stay.
func OneToMany[C any](coll Collection[C], spec Spec[C], incoming []pg.Patch, replace bool) (Plan[C], error) {
	plan := Plan[C]{id: spec.ID}
	existing := coll.Children()
	byID := make(map[uuid.UUID]*C, len(existing))
	for _, c := range existing {
		byID[spec.ID(c)] = c
	}
	matched := make(map[uuid.UUID]bool, len(incoming))

	for i, in := range incoming {
		patch := clonePatch(in)
		id, hasID, err := takeID(patch)
		if err != nil {
			return Plan[C]{}, fmt.Errorf("item %d: %w", i, err)
		}
		if child, ok := byID[id]; hasID && ok {
			if err := spec.Apply(child, patch); err != nil {
				return Plan[C]{}, fmt.Errorf("item %d: %w", i, err)
			}
			if !matched[id] {
				plan.Updated = append(plan.Updated, child)
			}
			matched[id] = true
			continue
		}
		child := spec.New()
		if err := spec.Apply(child, patch); err != nil {
			return Plan[C]{}, fmt.Errorf("item %d: %w", i, err)
		}
		plan.Inserted = append(plan.Inserted, child)
	}

	final := make([]*C, 0, len(existing)+len(plan.Inserted))
	for _, c := range existing {
		if replace && !matched[spec.ID(c)] {
			plan.Removed = append(plan.Removed, c)
			continue
		}
		final = append(final, c)
	}
	final = append(final, plan.Inserted...)
	coll.SetChildren(final)
	return plan, nil
}

// ChildStore writes children inside a caller's transaction. *pg.Repository
// satisfies it.
type ChildStore[C any] interface {
	InsertTx(ctx context.Context, q pg.Querier, c *C) error
	UpdateTx(ctx context.Context, q pg.Querier, c *C, columns ...string) error
	DeleteTx(ctx context.Context, q pg.Querier, id uuid.UUID) error
}

// Persist deletes removed children, rewrites updated ones and inserts new
// ones, in that order. attach sets the parent reference on each new child.
func (p Plan[C]) Persist(ctx context.Context, q pg.Querier, store ChildStore[C], attach func(*C)) error {
	for _, c := range p.Removed {
		if err := store.DeleteTx(ctx, q, p.id(c)); err != nil {
			return err
		}
	}
	for _, c := range p.Updated {
		if err := store.UpdateTx(ctx, q, c); err != nil {
			return err
		}
	}
	for _, c := range p.Inserted {
		if attach != nil {
			attach(c)
		}
		if err := store.InsertTx(ctx, q, c); err != nil {
			return err
		}
	}
	return nil
}

func clonePatch(in pg.Patch) pg.Patch {
	out := make(pg.Patch, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// takeID strips "id" from the payload. A null or absent id means a new child.
func takeID(p pg.Patch) (uuid.UUID, bool, error) {
	raw, ok := p.Take("id")
	if !ok || string(raw) == "null" {
		return uuid.Nil, false, nil
	}
	var id uuid.UUID
	if err := json.Unmarshal(raw, &id); err != nil {
		return uuid.Nil, false, fmt.Errorf("%w: id: %v", pg.ErrInvalidPatch, err)
	}
	return id, true, nil
}

// decodeList reads a JSON array; null reads as an empty list.
func decodeList[V any](name string, raw json.RawMessage) ([]V, error) {
	var out []V
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pg.ErrInvalidPatch, name, err)
	}
	return out, nil
}
