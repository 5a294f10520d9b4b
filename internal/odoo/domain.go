package odoo

// Domain is an Odoo search domain: a list of conditions and operators.
type Domain []any

// Cond builds a single (field, operator, value) condition.
func Cond(field, op string, value any) []any {
	return []any{field, op, value}
}

func (d Domain) toArgs() []any {
	if d == nil {
		return []any{}
	}
	return []any(d)
}

// ReadOptions are the keyword arguments of search_read.
type ReadOptions struct {
	Fields []string
	Offset int
	Limit  int
	Order  string
}

func (o ReadOptions) kwargs() map[string]any {
	kw := map[string]any{}
	if len(o.Fields) > 0 {
		kw["fields"] = o.Fields
	}
	if o.Offset > 0 {
		kw["offset"] = o.Offset
	}
	if o.Limit > 0 {
		kw["limit"] = o.Limit
	}
	if o.Order != "" {
		kw["order"] = o.Order
	}
	return kw
}
