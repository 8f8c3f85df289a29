package pg

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Filter maps column names to wanted values:
//
//	nil            column IS NULL
//	slice/array    column IN (...), OR column IS NULL when a nil member is present;
//	               an empty collection adds no predicate at all
//	anything else  column = value
//
// Keys that are not columns of the table are ignored.
type Filter map[string]any

type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) add(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " where " + strings.Join(w.clauses, " and ")
}

// filter appends one predicate per known filter key, in sorted key order so
// the generated SQL is stable.
func (w *whereBuilder) filter(f Filter, known func(string) bool) {
	keys := make([]string, 0, len(f))
	for k := range f {
		if known(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, col := range keys {
		value := f[col]
		if isNil(value) {
			w.add(col + " is null")
			continue
		}
		members, isCollection := collection(value)
		if !isCollection {
			w.add(col + " = " + w.arg(value))
			continue
		}
		if len(members) == 0 {
			continue
		}
		var (
			placeholders []string
			withNull     bool
		)
		for _, m := range members {
			if isNil(m) {
				withNull = true
				continue
			}
			placeholders = append(placeholders, w.arg(m))
		}
		switch {
		case len(placeholders) == 0:
			w.add(col + " is null")
		case withNull:
			w.add(fmt.Sprintf("(%s in (%s) or %s is null)", col, strings.Join(placeholders, ", "), col))
		default:
			w.add(fmt.Sprintf("%s in (%s)", col, strings.Join(placeholders, ", ")))
		}
	}
}

// search ORs a case-insensitive substring match across cols.
func (w *whereBuilder) search(term string, cols []string) {
	term = strings.TrimSpace(term)
	if term == "" || len(cols) == 0 {
		return
	}
	ph := w.arg("%" + escapeLike(term) + "%")
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + " ilike " + ph
	}
	w.add("(" + strings.Join(parts, " or ") + ")")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map:
		return rv.IsNil()
	}
	return false
}

// collection unpacks slices and arrays.
func collection(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		// []byte and fixed byte arrays such as uuid.UUID are single values.
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
	default:
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
