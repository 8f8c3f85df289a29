// Package content holds the course, project, profile and lead entities and
// the table mappings and relationships that serve them.
package content

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

// StringList is a JSON array of strings stored in a jsonb column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan StringList from %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

const dateLayout = "2006-01-02"

// Date is a calendar day encoded as YYYY-MM-DD.
type Date struct{ time.Time }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("date must look like %s", dateLayout)
	}
	d.Time = t
	return nil
}

func (d Date) Value() (driver.Value, error) { return d.Format(dateLayout), nil }

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.Time = v
	case string:
		return d.UnmarshalJSON([]byte(`"` + v + `"`))
	case []byte:
		return d.UnmarshalJSON([]byte(`"` + string(v) + `"`))
	default:
		return fmt.Errorf("scan Date from %T", src)
	}
	return nil
}

// trimmed normalizes an optional text field; blank becomes nil.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func required(field, value string, max int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", pg.ErrValidation, field)
	}
	if max > 0 && len(value) > max {
		return fmt.Errorf("%w: %s must be at most %d characters", pg.ErrValidation, field, max)
	}
	return nil
}

func maxLen(field string, value *string, max int) error {
	if value != nil && len(*value) > max {
		return fmt.Errorf("%w: %s must be at most %d characters", pg.ErrValidation, field, max)
	}
	return nil
}

func requiredRef(field string) error {
	return fmt.Errorf("%w: %s is required", pg.ErrValidation, field)
}

func positive(field string, v int) error {
	if v < 1 {
		return fmt.Errorf("%w: %s must be >= 1", pg.ErrValidation, field)
	}
	return nil
}
