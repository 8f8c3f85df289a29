package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 20
	MaxLimit     = 1000
)

// Query selects a page of rows.
type Query struct {
	Filter Filter
	// Projection restricts the returned columns; see ListProjected.
	Projection []string
	// Eager names relationships to load alongside each row.
	Eager  []string
	Search string
	Skip   int
	Limit  int
}

func (q Query) normalized() Query {
	if q.Skip < 0 {
		q.Skip = 0
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q
}

// Page is one slice of a filtered listing together with the filtered total.
type Page[E any] struct {
	Items []E   `json:"items"`
	Total int64 `json:"total"`
	Skip  int   `json:"skip"`
	Limit int   `json:"limit"`
}

// TxHook runs inside the transaction of a write, after the row itself was
// written. Returning an error rolls the whole write back.
type TxHook[T any] func(ctx context.Context, q Querier, e *T) error

// Repository provides CRUD over one table.
type Repository[T any] struct {
	db    *sql.DB
	table *Table[T]
}

// NewRepository binds table to db.
func NewRepository[T any](db *sql.DB, table *Table[T]) *Repository[T] {
	return &Repository[T]{db: db, table: table}
}

func (r *Repository[T]) Table() *Table[T] { return r.table }

func (r *Repository[T]) DB() *sql.DB { return r.db }

// InTx runs fn in a transaction on the repository's database.
func (r *Repository[T]) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return InTx(ctx, r.db, fn)
}

// List returns full entities matching q together with the filtered total.
func (r *Repository[T]) List(ctx context.Context, q Query) (Page[*T], error) {
	q = q.normalized()
	items, total, err := r.page(ctx, q, r.table.Columns)
	if err != nil {
		return Page[*T]{}, err
	}
	if err := r.loadEager(ctx, r.db, items, q.Eager); err != nil {
		return Page[*T]{}, classifyHook("list", r.table.Name, err)
	}
	return Page[*T]{Items: items, Total: total, Skip: q.Skip, Limit: q.Limit}, nil
}

// ListProjected returns plain column maps restricted to q.Projection. The id
// column is always present. Unknown names are ignored and an empty
// projection selects every column.
func (r *Repository[T]) ListProjected(ctx context.Context, q Query) (Page[map[string]any], error) {
	q = q.normalized()
	cols := r.projection(q.Projection)
	items, total, err := r.page(ctx, q, cols)
	if err != nil {
		return Page[map[string]any]{}, err
	}
	out := make([]map[string]any, len(items))
	for i, e := range items {
		row := make(map[string]any, len(cols))
		for _, c := range cols {
			row[c.Name] = c.Value(e)
		}
		out[i] = row
	}
	return Page[map[string]any]{Items: out, Total: total, Skip: q.Skip, Limit: q.Limit}, nil
}

func (r *Repository[T]) page(ctx context.Context, q Query, cols []Column[T]) ([]*T, int64, error) {
	var w whereBuilder
	w.filter(q.Filter, r.table.Has)
	w.search(q.Search, r.table.Search)
	where, args := w.sql(), w.args

	listSQL := fmt.Sprintf("select %s from %s%s order by %s limit $%d offset $%d",
		columnList(cols), r.table.Name, where, r.table.OrderBy, len(args)+1, len(args)+2)
	listArgs := append(append(make([]any, 0, len(args)+2), args...), q.Limit, q.Skip)

	items, err := r.scanAll(ctx, r.db, cols, listSQL, listArgs...)
	if err != nil {
		return nil, 0, classify("list", r.table.Name, err)
	}

	var total int64
	countSQL := fmt.Sprintf("select count(*) from %s%s", r.table.Name, where)
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, classify("count", r.table.Name, err)
	}
	return items, total, nil
}

func (r *Repository[T]) projection(names []string) []Column[T] {
	if len(names) == 0 {
		return r.table.Columns
	}
	idCol, _ := r.table.Column("id")
	cols := []Column[T]{idCol}
	seen := map[string]bool{"id": true}
	for _, n := range names {
		if seen[n] {
			continue
		}
		if c, ok := r.table.Column(n); ok {
			cols = append(cols, c)
			seen[n] = true
		}
	}
	if len(cols) == 1 {
		return r.table.Columns
	}
	return cols
}

// Get returns the entity with id, or nil when there is none.
func (r *Repository[T]) Get(ctx context.Context, id uuid.UUID, eager ...string) (*T, error) {
	e, err := r.GetTx(ctx, r.db, id)
	if err != nil || e == nil {
		return e, err
	}
	if err := r.loadEager(ctx, r.db, []*T{e}, eager); err != nil {
		return nil, classifyHook("get", r.table.Name, err)
	}
	return e, nil
}

// GetTx is Get without eager loading, bound to q.
func (r *Repository[T]) GetTx(ctx context.Context, q Querier, id uuid.UUID) (*T, error) {
	query := fmt.Sprintf("select %s from %s where id = $1", columnList(r.table.Columns), r.table.Name)
	e := new(T)
	err := q.QueryRowContext(ctx, query, id).Scan(r.scanTargets(e, r.table.Columns)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get", r.table.Name, err)
	}
	return e, nil
}

// ListByTx returns rows whose column matches one of values, in table order.
// No values means no rows.
func (r *Repository[T]) ListByTx(ctx context.Context, q Querier, column string, values ...any) ([]*T, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if !r.table.Has(column) {
		return nil, fmt.Errorf("%s: unknown column %q", r.table.Name, column)
	}
	var w whereBuilder
	w.filter(Filter{column: values}, r.table.Has)
	query := fmt.Sprintf("select %s from %s%s order by %s",
		columnList(r.table.Columns), r.table.Name, w.sql(), r.table.OrderBy)
	items, err := r.scanAll(ctx, q, r.table.Columns, query, w.args...)
	if err != nil {
		return nil, classify("find", r.table.Name, err)
	}
	return items, nil
}

// Create inserts e and runs hooks in the same transaction.
func (r *Repository[T]) Create(ctx context.Context, e *T, hooks ...TxHook[T]) (*T, error) {
	var hookErr error
	err := InTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.InsertTx(ctx, tx, e); err != nil {
			return err
		}
		hookErr = runHooks(ctx, tx, e, hooks)
		return hookErr
	})
	if err != nil {
		return nil, r.txError("create", err, hookErr)
	}
	return e, nil
}

// CreateBulk inserts all items or none of them.
func (r *Repository[T]) CreateBulk(ctx context.Context, items []*T) ([]*T, error) {
	if len(items) == 0 {
		return []*T{}, nil
	}
	err := InTx(ctx, r.db, func(tx *sql.Tx) error {
		for i, e := range items {
			if err := r.InsertTx(ctx, tx, e); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify("create_bulk", r.table.Name, err)
	}
	return items, nil
}

// Update applies patch to a copy of e, writes the touched columns and runs
// hooks in one transaction, then returns the refreshed entity. e itself is
// left as it was. An empty patch writes no column; the row is only touched
// and re-read before the hooks run.
func (r *Repository[T]) Update(ctx context.Context, e *T, patch Patch, hooks ...TxHook[T]) (*T, error) {
	updated := *e
	if err := r.table.Apply(&updated, patch); err != nil {
		return nil, err
	}
	cols := patch.Keys()
	var hookErr error
	err := InTx(ctx, r.db, func(tx *sql.Tx) error {
		write := r.TouchTx
		if len(cols) > 0 {
			write = func(ctx context.Context, q Querier, e *T) error { return r.UpdateTx(ctx, q, e, cols...) }
		}
		if err := write(ctx, tx, &updated); err != nil {
			return err
		}
		hookErr = runHooks(ctx, tx, &updated, hooks)
		return hookErr
	})
	if err != nil {
		return nil, r.txError("update", err, hookErr)
	}
	return &updated, nil
}

// Delete removes the row. Deleting a missing row is not an error.
func (r *Repository[T]) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DeleteTx(ctx, r.db, id)
}

// InsertTx inserts e through q, assigning a UUIDv7 when e has no id yet,
// and refreshes e from the stored row.
func (r *Repository[T]) InsertTx(ctx context.Context, q Querier, e *T) error {
	if err := r.table.check(e); err != nil {
		return err
	}
	m := r.table.Model(e)
	if m.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		m.ID = id
	}
	var (
		names []string
		marks []string
		args  []any
	)
	for _, c := range r.table.Columns {
		if c.Generated {
			continue
		}
		args = append(args, c.Value(e))
		names = append(names, c.Name)
		marks = append(marks, fmt.Sprintf("$%d", len(args)))
	}
	query := fmt.Sprintf("insert into %s (%s) values (%s) returning %s",
		r.table.Name, strings.Join(names, ", "), strings.Join(marks, ", "), columnList(r.table.Columns))
	if err := q.QueryRowContext(ctx, query, args...).Scan(r.scanTargets(e, r.table.Columns)...); err != nil {
		return classify("insert", r.table.Name, err)
	}
	return nil
}

// UpdateTx writes the named columns of e through q and refreshes e. With no
// names every patchable column is written. Read-only columns may be named
// here; only id and generated columns are refused. updated_at is always
// bumped.
func (r *Repository[T]) UpdateTx(ctx context.Context, q Querier, e *T, columns ...string) error {
	if err := r.table.check(e); err != nil {
		return err
	}
	if len(columns) == 0 {
		for _, c := range r.table.Columns {
			if c.Set != nil {
				columns = append(columns, c.Name)
			}
		}
	}
	var (
		sets []string
		args []any
	)
	for _, name := range columns {
		c, ok := r.table.Column(name)
		if !ok || c.Generated || c.Name == "id" {
			return invalidPatch("%s: field %q cannot be written", r.table.Name, name)
		}
		args = append(args, c.Value(e))
		sets = append(sets, fmt.Sprintf("%s = $%d", c.Name, len(args)))
	}
	sets = append(sets, "updated_at = now()")
	id := r.table.Model(e).ID
	args = append(args, id)
	query := fmt.Sprintf("update %s set %s where id = $%d returning %s",
		r.table.Name, strings.Join(sets, ", "), len(args), columnList(r.table.Columns))
	err := q.QueryRowContext(ctx, query, args...).Scan(r.scanTargets(e, r.table.Columns)...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s %s: %w", r.table.Name, id, ErrNotFound)
	}
	if err != nil {
		return classify("update", r.table.Name, err)
	}
	return nil
}

// TouchTx bumps updated_at of e's row through q and refreshes e from it.
func (r *Repository[T]) TouchTx(ctx context.Context, q Querier, e *T) error {
	id := r.table.Model(e).ID
	query := fmt.Sprintf("update %s set updated_at = now() where id = $1 returning %s",
		r.table.Name, columnList(r.table.Columns))
	err := q.QueryRowContext(ctx, query, id).Scan(r.scanTargets(e, r.table.Columns)...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s %s: %w", r.table.Name, id, ErrNotFound)
	}
	if err != nil {
		return classify("update", r.table.Name, err)
	}
	return nil
}

// DeleteTx removes the row with id through q.
func (r *Repository[T]) DeleteTx(ctx context.Context, q Querier, id uuid.UUID) error {
	query := fmt.Sprintf("delete from %s where id = $1", r.table.Name)
	if _, err := q.ExecContext(ctx, query, id); err != nil {
		return classify("delete", r.table.Name, err)
	}
	return nil
}

func (r *Repository[T]) loadEager(ctx context.Context, q Querier, items []*T, names []string) error {
	if len(items) == 0 {
		return nil
	}
	done := make(map[string]bool, len(names))
	for _, name := range names {
		load, ok := r.table.Eager[name]
		if !ok || done[name] {
			continue
		}
		done[name] = true
		if err := load(ctx, q, items); err != nil {
			return fmt.Errorf("load %s.%s: %w", r.table.Name, name, err)
		}
	}
	return nil
}

func (r *Repository[T]) scanAll(ctx context.Context, q Querier, cols []Column[T], query string, args ...any) ([]*T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*T, 0)
	for rows.Next() {
		e := new(T)
		if err := rows.Scan(r.scanTargets(e, cols)...); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Repository[T]) scanTargets(e *T, cols []Column[T]) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = c.Scan(e)
	}
	return out
}

func runHooks[T any](ctx context.Context, q Querier, e *T, hooks []TxHook[T]) error {
	for _, h := range hooks {
		if h == nil {
			continue
		}
		if err := h(ctx, q, e); err != nil {
			return err
		}
	}
	return nil
}

// txError keeps caller hook errors as they are and types everything else.
func (r *Repository[T]) txError(op string, err, hookErr error) error {
	if hookErr != nil && errors.Is(err, hookErr) {
		return classifyHook(op, r.table.Name, hookErr)
	}
	return classify(op, r.table.Name, err)
}

func columnList[T any](cols []Column[T]) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

// Args converts a typed slice into variadic statement arguments.
func Args[V any](values []V) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
