package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/audit"
	"github.com/Be1newinner/asaan-hai-coding/internal/relpatch"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// resource serves list, get, create, bulk create, update and delete for
// one repository. Optional hooks adapt it to a table's rules.
type resource[T any] struct {
	name string
	repo *pg.Repository[T]
	// eager is loaded by get and after writes.
	eager []string
	// listEager is loaded by list unless the client asks for include.
	listEager []string
	relations *relpatch.Registry[T]

	// restrict narrows a listing for the caller, e.g. to published rows.
	restrict func(r *http.Request, q *pg.Query)
	// hidden hides a row from the caller on get.
	hidden func(r *http.Request, e *T) bool
	// build turns a create payload into an entity. Defaults to the table
	// decoder.
	build func(p pg.Patch) (*T, error)
	// prepare rewrites an update patch before it is applied.
	prepare func(p pg.Patch) error
	create  func(ctx context.Context, e *T) (*T, error)
	bulk    func(ctx context.Context, items []*T) ([]*T, error)
}

func (res *resource[T]) id(e *T) uuid.UUID { return res.repo.Table().Model(e).ID }

// mountRead registers the public routes.
func (res *resource[T]) mountRead(r chi.Router) {
	r.Get("/", res.list)
	r.Get("/{id}", res.get)
}

// mountWrite registers the write routes; callers guard them.
func (res *resource[T]) mountWrite(r chi.Router) {
	r.Post("/", res.createOne)
	r.Post("/bulk", res.createMany)
	r.Put("/{id}", res.update)
	r.Patch("/{id}", res.update)
	r.Delete("/{id}", res.remove)
}

func (res *resource[T]) list(w http.ResponseWriter, r *http.Request) {
	q, err := listQuery(r.URL.Query(), res.repo.Table().Has)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if len(q.Eager) == 0 {
		q.Eager = res.listEager
	}
	if res.restrict != nil {
		res.restrict(r, &q)
	}
	if len(q.Projection) > 0 {
		page, err := res.repo.ListProjected(r.Context(), q)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
		return
	}
	page, err := res.repo.List(r.Context(), q)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (res *resource[T]) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	e, err := res.load(r.Context(), id, res.eager...)
	if err == nil && res.hidden != nil && res.hidden(r, e) {
		err = res.missing(id)
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (res *resource[T]) load(ctx context.Context, id uuid.UUID, eager ...string) (*T, error) {
	e, err := res.repo.Get(ctx, id, eager...)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, res.missing(id)
	}
	return e, nil
}

func (res *resource[T]) missing(id uuid.UUID) error {
	return wrapNotFound(res.name, id)
}

func (res *resource[T]) decode(p pg.Patch) (*T, error) {
	if res.build != nil {
		return res.build(p)
	}
	return res.repo.Table().Decode(p)
}

func (res *resource[T]) createOne(w http.ResponseWriter, r *http.Request) {
	var patch pg.Patch
	if err := decodeJSON(r, &patch, false); err != nil {
		handleError(w, r, err)
		return
	}
	if patch == nil {
		handleError(w, r, badRequest("request body must be an object"))
		return
	}
	var rels map[string]json.RawMessage
	if res.relations != nil {
		rels = res.relations.Extract(patch)
	}
	e, err := res.decode(patch)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var created *T
	switch {
	case res.create != nil:
		created, err = res.create(r.Context(), e)
	case res.relations != nil:
		created, err = res.repo.Create(r.Context(), e, res.relations.Hook(rels))
	default:
		created, err = res.repo.Create(r.Context(), e)
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	id := res.id(created)
	res.record(r, audit.ActionCreate, id, map[string]any{"fields": patch.Keys()})
	if len(res.eager) > 0 {
		if fresh, err := res.repo.Get(r.Context(), id, res.eager...); err == nil && fresh != nil {
			created = fresh
		}
	}
	w.Header().Set("Location", r.URL.Path+"/"+id.String())
	writeJSON(w, http.StatusCreated, created)
}

func (res *resource[T]) createMany(w http.ResponseWriter, r *http.Request) {
	var patches []pg.Patch
	if err := decodeJSON(r, &patches, false); err != nil {
		handleError(w, r, err)
		return
	}
	if len(patches) == 0 {
		handleError(w, r, badRequest("request body must be a non-empty array"))
		return
	}
	items := make([]*T, len(patches))
	for i, p := range patches {
		if p == nil {
			handleError(w, r, badRequest("item %d must be an object", i))
			return
		}
		e, err := res.decode(p)
		if err != nil {
			handleError(w, r, err)
			return
		}
		items[i] = e
	}
	bulk := res.repo.CreateBulk
	if res.bulk != nil {
		bulk = res.bulk
	}
	created, err := bulk(r.Context(), items)
	if err != nil {
		handleError(w, r, err)
		return
	}
	res.record(r, audit.ActionBulkCreate, uuid.Nil, map[string]any{"count": len(created)})
	writeJSON(w, http.StatusCreated, created)
}

func (res *resource[T]) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var patch pg.Patch
	if err := decodeJSON(r, &patch, false); err != nil {
		handleError(w, r, err)
		return
	}
	if patch == nil {
		handleError(w, r, badRequest("request body must be an object"))
		return
	}
	existing, err := res.load(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if res.prepare != nil {
		if err := res.prepare(patch); err != nil {
			handleError(w, r, err)
			return
		}
	}
	var hooks []pg.TxHook[T]
	if res.relations != nil {
		hooks = append(hooks, res.relations.Hook(res.relations.Extract(patch)))
	}
	fields := patch.Keys()
	updated, err := res.repo.Update(r.Context(), existing, patch, hooks...)
	if err != nil {
		handleError(w, r, err)
		return
	}
	res.record(r, audit.ActionUpdate, id, map[string]any{"fields": fields})
	if len(res.eager) > 0 {
		if fresh, err := res.repo.Get(r.Context(), id, res.eager...); err == nil && fresh != nil {
			updated = fresh
		}
	}
	writeJSON(w, http.StatusOK, updated)
}

func (res *resource[T]) remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := res.repo.Delete(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	res.record(r, audit.ActionDelete, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (res *resource[T]) record(r *http.Request, action string, id uuid.UUID, fields map[string]any) {
	recordAudit(r, action, res.name, id, fields)
}
