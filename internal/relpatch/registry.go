package relpatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// Relation writes one named relationship of parent from its raw payload.
type Relation[P any] func(ctx context.Context, q pg.Querier, parent *P, raw json.RawMessage) error

// Children reconciles a one-to-many relationship whose payload is a list of
// child patches. load fills the parent's stored children through the write's
// transaction before they are matched against the payload.
func Children[P, C any](children *pg.Repository[C], load pg.Loader[P], coll func(*P) Collection[C], attach func(*P, *C), replace bool) Relation[P] {
	spec := TableSpec(children.Table())
	return func(ctx context.Context, q pg.Querier, parent *P, raw json.RawMessage) error {
		incoming, err := decodeList[pg.Patch]("children", raw)
		if err != nil {
			return err
		}
		if load != nil {
			if err := load(ctx, q, []*P{parent}); err != nil {
				return err
			}
		}
		plan, err := OneToMany(coll(parent), spec, incoming, replace)
		if err != nil {
			return err
		}
		return plan.Persist(ctx, q, children, func(c *C) { attach(parent, c) })
	}
}

// Links replaces a many-to-many relationship from a list of target ids.
func Links[P, E any](link Link, ownerID func(*P) uuid.UUID, targets *pg.Repository[E], set func(*P, []*E)) Relation[P] {
	return func(ctx context.Context, q pg.Querier, parent *P, raw json.RawMessage) error {
		ids, err := decodeList[uuid.UUID](link.Table, raw)
		if err != nil {
			return err
		}
		resolved, err := ReplaceByIDs(ctx, q, link, ownerID(parent), ids, targets)
		if err != nil {
			return err
		}
		set(parent, resolved)
		return nil
	}
}

// Registry holds the relationships of one parent type by payload key.
type Registry[P any] struct {
	rels map[string]Relation[P]
}

func NewRegistry[P any]() *Registry[P] {
	return &Registry[P]{rels: map[string]Relation[P]{}}
}

// Register adds rel under name and returns the registry for chaining.
func (r *Registry[P]) Register(name string, rel Relation[P]) *Registry[P] {
	r.rels[name] = rel
	return r
}

// Extract moves every registered relationship key out of patch, leaving
// only scalar fields behind.
func (r *Registry[P]) Extract(patch pg.Patch) map[string]json.RawMessage {
	out := map[string]json.RawMessage{}
	for name := range r.rels {
		if raw, ok := patch.Take(name); ok {
			out[name] = raw
		}
	}
	return out
}

// Apply runs the named relationship. An unregistered name is a programming
// error and panics.
func (r *Registry[P]) Apply(ctx context.Context, q pg.Querier, parent *P, name string, raw json.RawMessage) error {
	rel, ok := r.rels[name]
	if !ok {
		panic(fmt.Sprintf("relpatch: unknown relationship %q", name))
	}
	if err := rel(ctx, q, parent, raw); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Hook returns a repository hook applying payloads in name order.
func (r *Registry[P]) Hook(payloads map[string]json.RawMessage) pg.TxHook[P] {
	if len(payloads) == 0 {
		return nil
	}
	names := make([]string, 0, len(payloads))
	for name := range payloads {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(ctx context.Context, q pg.Querier, parent *P) error {
		for _, name := range names {
			if err := r.Apply(ctx, q, parent, name, payloads[name]); err != nil {
				return err
			}
		}
		return nil
	}
}
