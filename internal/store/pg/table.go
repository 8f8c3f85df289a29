package pg

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Model carries the identity and audit columns shared by every table.
type Model struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Patch is a partial update keyed by column name. A key that is absent
// leaves the column untouched; a key holding JSON null clears it.
type Patch map[string]json.RawMessage

// Take removes key from the patch and returns its raw value.
func (p Patch) Take(key string) (json.RawMessage, bool) {
	raw, ok := p[key]
	if ok {
		delete(p, key)
	}
	return raw, ok
}

// Set stores v under key, replacing any previous value.
func (p Patch) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p[key] = raw
	return nil
}

// Keys returns the patch keys in sorted order.
func (p Patch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Column describes how one column maps onto a field of T.
type Column[T any] struct {
	Name string
	// Scan returns a pointer to the field, used as a scan destination.
	Scan func(*T) any
	// Value returns the field value, used as a statement argument.
	Value func(*T) any
	// Set decodes a patch value into the field. Nil means not patchable.
	Set func(*T, json.RawMessage) error
	// Generated columns are filled by the database and never inserted.
	Generated bool
}

// ReadOnly maps a column that is written on insert but never patched.
func ReadOnly[T, V any](name string, ref func(*T) *V) Column[T] {
	return Column[T]{
		Name:  name,
		Scan:  func(e *T) any { return ref(e) },
		Value: func(e *T) any { return *ref(e) },
	}
}

// Generated maps a column whose value is assigned by the database.
func Generated[T, V any](name string, ref func(*T) *V) Column[T] {
	c := ReadOnly(name, ref)
	c.Generated = true
	return c
}

// Mutable maps a patchable column that must not be null.
func Mutable[T, V any](name string, ref func(*T) *V) Column[T] {
	c := ReadOnly(name, ref)
	c.Set = func(e *T, raw json.RawMessage) error {
		if isNull(raw) {
			return invalidPatch("%s cannot be null", name)
		}
		var v V
		if err := json.Unmarshal(raw, &v); err != nil {
			return invalidPatch("%s: %v", name, err)
		}
		*ref(e) = v
		return nil
	}
	return c
}

// Optional maps a patchable nullable column; null clears it.
func Optional[T, V any](name string, ref func(*T) **V) Column[T] {
	return Column[T]{
		Name:  name,
		Scan:  func(e *T) any { return ref(e) },
		Value: func(e *T) any { return *ref(e) },
		Set: func(e *T, raw json.RawMessage) error {
			if isNull(raw) {
				*ref(e) = nil
				return nil
			}
			v := new(V)
			if err := json.Unmarshal(raw, v); err != nil {
				return invalidPatch("%s: %v", name, err)
			}
			*ref(e) = v
			return nil
		},
	}
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Loader fills a named relationship on already loaded items.
type Loader[T any] func(ctx context.Context, q Querier, items []*T) error

// Table is the explicit mapping between an entity type and its table.
type Table[T any] struct {
	Name    string
	Columns []Column[T]
	Model   func(*T) *Model
	// OrderBy is the list ordering; it never reaches count queries.
	OrderBy string
	// Search lists the columns matched by Query.Search.
	Search []string
	// Eager holds the relationships that can be requested by name.
	Eager map[string]Loader[T]
	// Check normalizes and validates an entity before it is written.
	Check func(*T) error

	index map[string]int
}

// NewTable builds a table whose first column is id and whose last columns
// are created_at and updated_at.
func NewTable[T any](name string, model func(*T) *Model, cols ...Column[T]) *Table[T] {
	all := make([]Column[T], 0, len(cols)+3)
	all = append(all, ReadOnly("id", func(e *T) *uuid.UUID { return &model(e).ID }))
	all = append(all, cols...)
	all = append(all,
		Generated("created_at", func(e *T) *time.Time { return &model(e).CreatedAt }),
		Generated("updated_at", func(e *T) *time.Time { return &model(e).UpdatedAt }),
	)
	t := &Table[T]{
		Name:    name,
		Columns: all,
		Model:   model,
		OrderBy: "created_at desc, id desc",
		Eager:   map[string]Loader[T]{},
		index:   make(map[string]int, len(all)),
	}
	for i, c := range all {
		t.index[c.Name] = i
	}
	return t
}

// Column returns the named column.
func (t *Table[T]) Column(name string) (Column[T], bool) {
	i, ok := t.index[name]
	if !ok {
		return Column[T]{}, false
	}
	return t.Columns[i], true
}

// Has reports whether the table declares the column.
func (t *Table[T]) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Apply writes every patch value onto e through the column setters.
// Unknown keys and read-only columns are rejected.
func (t *Table[T]) Apply(e *T, patch Patch) error {
	for _, key := range patch.Keys() {
		col, ok := t.Column(key)
		if !ok || col.Set == nil {
			return invalidPatch("%s: unknown or read-only field %q", t.Name, key)
		}
		if err := col.Set(e, patch[key]); err != nil {
			return err
		}
	}
	return nil
}

// Decode builds a new entity from a create payload. Keys must match the
// entity's JSON fields; identity and audit fields are cleared.
func (t *Table[T]) Decode(p Patch) (*T, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, invalidPatch("%s: %v", t.Name, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	e := new(T)
	if err := dec.Decode(e); err != nil {
		return nil, invalidPatch("%s: %v", t.Name, err)
	}
	*t.Model(e) = Model{}
	return e, nil
}

// Names returns the column names in declaration order.
func (t *Table[T]) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

func (t *Table[T]) check(e *T) error {
	if t.Check == nil {
		return nil
	}
	return t.Check(e)
}
