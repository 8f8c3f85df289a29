package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// Query parameters with a meaning of their own; every other parameter that
// names a column becomes a filter.
var reservedParams = map[string]bool{
	"skip":    true,
	"limit":   true,
	"search":  true,
	"fields":  true,
	"include": true,
}

// listQuery reads paging, search, projection, eager options and column
// filters. A repeated parameter filters by membership and the literal null
// matches NULL. Parameters naming unknown columns are ignored.
func listQuery(v url.Values, known func(string) bool) (pg.Query, error) {
	var (
		q   pg.Query
		err error
	)
	if q.Skip, err = intParam(v, "skip", 0); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(v, "limit", pg.DefaultLimit); err != nil {
		return q, err
	}
	q.Search = strings.TrimSpace(v.Get("search"))
	q.Projection = commaList(v["fields"])
	q.Eager = commaList(v["include"])

	for key, values := range v {
		if reservedParams[key] || !known(key) || len(values) == 0 {
			continue
		}
		if q.Filter == nil {
			q.Filter = pg.Filter{}
		}
		if len(values) == 1 {
			q.Filter[key] = filterValue(values[0])
			continue
		}
		members := make([]any, len(values))
		for i, s := range values {
			members[i] = filterValue(s)
		}
		q.Filter[key] = members
	}
	return q, nil
}

func filterValue(s string) any {
	if s == "null" {
		return nil
	}
	return s
}

func intParam(v url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(v.Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", name)
	}
	return n, nil
}

// boolParam returns nil when the parameter is absent.
func boolParam(v url.Values, name string) (*bool, error) {
	raw := strings.TrimSpace(v.Get(name))
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, badRequest("%s must be true or false", name)
	}
	return &b, nil
}

func commaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest("malformed id %q", raw)
	}
	return id, nil
}
