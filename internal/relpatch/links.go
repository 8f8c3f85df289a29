package relpatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// Link is a join table between an owner and a target table.
type Link struct {
	Table  string
	Owner  string
	Target string
}

// ReplaceByIDs makes the owner linked to exactly the targets among ids that
// exist. Unknown ids are dropped and an empty list clears the association.
// The resolved targets are returned in target table order.
func ReplaceByIDs[E any](ctx context.Context, q pg.Querier, link Link, owner uuid.UUID, ids []uuid.UUID, targets *pg.Repository[E]) ([]*E, error) {
	resolved, err := targets.ListByTx(ctx, q, "id", pg.Args(dedupe(ids))...)
	if err != nil {
		return nil, err
	}
	if _, err := q.ExecContext(ctx, fmt.Sprintf("delete from %s where %s = $1", link.Table, link.Owner), owner); err != nil {
		return nil, fmt.Errorf("clear %s: %w", link.Table, err)
	}
	if len(resolved) == 0 {
		return []*E{}, nil
	}

	args := []any{owner}
	values := make([]string, len(resolved))
	for i, e := range resolved {
		args = append(args, targets.Table().Model(e).ID)
		values[i] = fmt.Sprintf("($1, $%d)", len(args))
	}
	query := fmt.Sprintf("insert into %s (%s, %s) values %s",
		link.Table, link.Owner, link.Target, strings.Join(values, ", "))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("link %s: %w", link.Table, err)
	}
	return resolved, nil
}

// LinkedIDs returns the target ids linked to each owner.
func (l Link) LinkedIDs(ctx context.Context, q pg.Querier, owners []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	out := make(map[uuid.UUID][]uuid.UUID, len(owners))
	if len(owners) == 0 {
		return out, nil
	}
	marks := make([]string, len(owners))
	args := make([]any, len(owners))
	for i, id := range owners {
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf("select %s, %s from %s where %s in (%s)",
		l.Owner, l.Target, l.Table, l.Owner, strings.Join(marks, ", "))
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var owner, target uuid.UUID
		if err := rows.Scan(&owner, &target); err != nil {
			return nil, err
		}
		out[owner] = append(out[owner], target)
	}
	return out, rows.Err()
}

// LoadLinked fills a many-to-many relationship on already loaded owners.
func LoadLinked[O, E any](ctx context.Context, q pg.Querier, link Link, owners []*O, ownerID func(*O) uuid.UUID, targets *pg.Repository[E], set func(*O, []*E)) error {
	ids := make([]uuid.UUID, len(owners))
	for i, o := range owners {
		ids[i] = ownerID(o)
	}
	linked, err := link.LinkedIDs(ctx, q, ids)
	if err != nil {
		return err
	}
	var all []uuid.UUID
	for _, ts := range linked {
		all = append(all, ts...)
	}
	found, err := targets.ListByTx(ctx, q, "id", pg.Args(dedupe(all))...)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]*E, len(found))
	for _, e := range found {
		byID[targets.Table().Model(e).ID] = e
	}
	for _, o := range owners {
		list := make([]*E, 0, len(linked[ownerID(o)]))
		for _, id := range linked[ownerID(o)] {
			if e, ok := byID[id]; ok {
				list = append(list, e)
			}
		}
		set(o, list)
	}
	return nil
}

// LoadChildren fills a one-to-many relationship on already loaded parents.
// Children come back in the child table's order.
func LoadChildren[P, C any](ctx context.Context, q pg.Querier, parents []*P, parentID func(*P) uuid.UUID, children *pg.Repository[C], fk string, fkOf func(*C) uuid.UUID, coll func(*P) Collection[C]) error {
	ids := make([]uuid.UUID, len(parents))
	for i, p := range parents {
		ids[i] = parentID(p)
	}
	found, err := children.ListByTx(ctx, q, fk, pg.Args(ids)...)
	if err != nil {
		return err
	}
	grouped := make(map[uuid.UUID][]*C, len(parents))
	for _, c := range found {
		grouped[fkOf(c)] = append(grouped[fkOf(c)], c)
	}
	for _, p := range parents {
		list := grouped[parentID(p)]
		if list == nil {
			list = []*C{}
		}
		coll(p).SetChildren(list)
	}
	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// One adapts a single optional child field to Collection.
type One[C any] struct{ P **C }

func (o One[C]) Children() []*C {
	if *o.P == nil {
		return nil
	}
	return []*C{*o.P}
}

func (o One[C]) SetChildren(c []*C) {
	if len(c) == 0 {
		*o.P = nil
		return
	}
	*o.P = c[0]
}

// LoadRefs fills a relationship whose foreign key lives on the parent.
func LoadRefs[P, E any](ctx context.Context, q pg.Querier, parents []*P, refOf func(*P) *uuid.UUID, targets *pg.Repository[E], set func(*P, *E)) error {
	var ids []uuid.UUID
	for _, p := range parents {
		if ref := refOf(p); ref != nil {
			ids = append(ids, *ref)
		}
	}
	found, err := targets.ListByTx(ctx, q, "id", pg.Args(dedupe(ids))...)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]*E, len(found))
	for _, e := range found {
		byID[targets.Table().Model(e).ID] = e
	}
	for _, p := range parents {
		if ref := refOf(p); ref != nil {
			set(p, byID[*ref])
		}
	}
	return nil
}
