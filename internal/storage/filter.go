package storage

import (
	"fmt"
	"strings"
)

// Predicate is one compiled WHERE fragment with its bound arguments.
// Predicates compose with And/Or; the zero value matches everything.
type Predicate struct {
	expr string
	args []any
}

// Eq matches col = v.
func Eq(col string, v any) Predicate {
	return Predicate{expr: col + " = ?", args: []any{v}}
}

// Neq matches col != v.
func Neq(col string, v any) Predicate {
	return Predicate{expr: col + " != ?", args: []any{v}}
}

// Like matches col LIKE pattern (caller supplies wildcards).
func Like(col, pattern string) Predicate {
	return Predicate{expr: col + " LIKE ?", args: []any{pattern}}
}

// Contains matches col LIKE '%substr%'.
func Contains(col, substr string) Predicate {
	return Like(col, "%"+substr+"%")
}

// IsNull matches col IS NULL.
func IsNull(col string) Predicate {
	return Predicate{expr: col + " IS NULL"}
}

// NotNull matches col IS NOT NULL.
func NotNull(col string) Predicate {
	return Predicate{expr: col + " IS NOT NULL"}
}

// In matches col IN (vals...). An empty value set matches nothing.
func In[T any](col string, vals []T) Predicate {
	if len(vals) == 0 {
		return Predicate{expr: "1 = 0"}
	}
	placeholders := make([]string, len(vals))
	args := make([]any, len(vals))
	for i, v := range vals {
		placeholders[i] = "?"
		args[i] = v
	}
	return Predicate{expr: col + " IN (" + strings.Join(placeholders, ", ") + ")", args: args}
}

// Gte matches col >= v.
func Gte(col string, v any) Predicate {
	return Predicate{expr: col + " >= ?", args: []any{v}}
}

// Lte matches col <= v.
func Lte(col string, v any) Predicate {
	return Predicate{expr: col + " <= ?", args: []any{v}}
}

// And joins predicates with AND, skipping empty ones.
func And(ps ...Predicate) Predicate {
	return join(" AND ", ps)
}

// Or joins predicates with OR, skipping empty ones.
func Or(ps ...Predicate) Predicate {
	return join(" OR ", ps)
}

func join(sep string, ps []Predicate) Predicate {
	var exprs []string
	var args []any
	for _, p := range ps {
		if p.expr == "" {
			continue
		}
		exprs = append(exprs, "("+p.expr+")")
		args = append(args, p.args...)
	}
	if len(exprs) == 0 {
		return Predicate{}
	}
	return Predicate{expr: strings.Join(exprs, sep), args: args}
}

// ListOptions shapes a filtered list query.
type ListOptions struct {
	Where   Predicate
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// compile renders the trailing clauses of a SELECT for opts.
func (o ListOptions) compile() (string, []any) {
	var sb strings.Builder
	var args []any
	if o.Where.expr != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(o.Where.expr)
		args = append(args, o.Where.args...)
	}
	if o.OrderBy != "" {
		fmt.Fprintf(&sb, " ORDER BY %s", o.OrderBy)
		if o.Desc {
			sb.WriteString(" DESC")
		}
	}
	if o.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", o.Limit)
		if o.Offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", o.Offset)
		}
	}
	return sb.String(), args
}
