package mapping

import (
	"strings"
	"time"
)

// Odoo serializes datetimes as naive UTC text.
const (
	DateTimeLayout = "2006-01-02 15:04:05"
	DateLayout     = "2006-01-02"
)

// record reads typed fields out of a decoded Odoo row. Odoo sends false for
// any empty non-boolean field, which reads as the zero value here.
type record struct {
	model string
	id    int
	m     map[string]any
}

func newRecord(model string, m map[string]any) (*record, error) {
	r := &record{model: model, m: m}
	id, err := r.requireInt("id")
	if err != nil {
		return nil, err
	}
	r.id = id
	return r, nil
}

func (r *record) missing(field string) error {
	return &MappingError{Model: r.model, Field: field, ID: r.id}
}

func (r *record) wrongType(field string, v any) error {
	return &MappingError{Model: r.model, Field: field, ID: r.id, Got: v}
}

func (r *record) value(field string) (any, bool) {
	v, ok := r.m[field]
	if !ok || v == nil || v == false {
		return nil, false
	}
	return v, true
}

func (r *record) requireInt(field string) (int, error) {
	v, ok := r.value(field)
	if !ok {
		return 0, r.missing(field)
	}
	n, ok := v.(int)
	if !ok {
		return 0, r.wrongType(field, v)
	}
	return n, nil
}

func (r *record) requireString(field string) (string, error) {
	v, ok := r.value(field)
	if !ok {
		return "", r.missing(field)
	}
	s, ok := v.(string)
	if !ok {
		return "", r.wrongType(field, v)
	}
	return s, nil
}

func (r *record) requireFloat(field string) (float64, error) {
	v, ok := r.value(field)
	if !ok {
		if _, present := r.m[field]; present {
			// false is also how Odoo sends a zero quantity on some versions.
			return 0, nil
		}
		return 0, r.missing(field)
	}
	return r.toFloat(field, v)
}

func (r *record) toFloat(field string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, r.wrongType(field, v)
}

func (r *record) optString(field string) (string, error) {
	v, ok := r.value(field)
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", r.wrongType(field, v)
	}
	return s, nil
}

func (r *record) optFloat(field string) (float64, bool, error) {
	v, ok := r.value(field)
	if !ok {
		return 0, false, nil
	}
	f, err := r.toFloat(field, v)
	return f, err == nil, err
}

func (r *record) optTime(field string) (time.Time, error) {
	v, ok := r.value(field)
	if !ok {
		return time.Time{}, nil
	}
	return r.toTime(field, v)
}

func (r *record) requireTime(field string) (time.Time, error) {
	v, ok := r.value(field)
	if !ok {
		return time.Time{}, r.missing(field)
	}
	return r.toTime(field, v)
}

func (r *record) toTime(field string, v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		if parsed, err := ParseTime(t); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, r.wrongType(field, v)
}

// many2one reads an [id, display_name] pair.
func (r *record) many2one(field string) (int, string, error) {
	v, ok := r.value(field)
	if !ok {
		return 0, "", nil
	}
	switch pair := v.(type) {
	case []any:
		if len(pair) == 0 {
			return 0, "", nil
		}
		id, ok := pair[0].(int)
		if !ok {
			return 0, "", r.wrongType(field, v)
		}
		name := ""
		if len(pair) > 1 {
			name, _ = pair[1].(string)
		}
		return id, name, nil
	case int:
		return pair, "", nil
	}
	return 0, "", r.wrongType(field, v)
}

// ParseTime accepts Odoo datetime and date text, interpreted as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(DateTimeLayout, s, time.UTC); err == nil {
		return t, nil
	}
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatTime renders t the way Odoo expects in domains and writes.
func FormatTime(t time.Time) string {
	return t.UTC().Format(DateTimeLayout)
}
