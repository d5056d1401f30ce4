package alert

import (
	"fmt"
	"net/url"
	"strings"
)

// FilterExpr is a tagged filter variant applied to a single alert
// field. Exactly one constructor shape exists per operator, replacing
// the old mix of bare strings and ad hoc operator objects.
type FilterExpr struct {
	op     filterOp
	value  string
	values []string
}

type filterOp string

const (
	opEquals filterOp = "eq"
	opNot    filterOp = "not"
	opOneOf  filterOp = "in"
)

// Equals matches when the field equals v.
func Equals(v string) FilterExpr { return FilterExpr{op: opEquals, value: v} }

// Not matches when the field does not equal v. This is true negation,
// not a fallback to a default value.
func Not(v string) FilterExpr { return FilterExpr{op: opNot, value: v} }

// OneOf matches when the field equals any of vs.
func OneOf(vs ...string) FilterExpr {
	return FilterExpr{op: opOneOf, values: append([]string(nil), vs...)}
}

// Match is the single interpreter for filter expressions.
func (f FilterExpr) Match(fieldValue string) bool {
	switch f.op {
	case opEquals:
		return fieldValue == f.value
	case opNot:
		return fieldValue != f.value
	case opOneOf:
		for _, v := range f.values {
			if fieldValue == v {
				return true
			}
		}
		return false
	default:
		// zero value matches everything
		return true
	}
}

// String renders the expression in the Alert Store query syntax:
// "v" for equals, "!v" for not, "a|b|c" for one-of.
func (f FilterExpr) String() string {
	switch f.op {
	case opEquals:
		return f.value
	case opNot:
		return "!" + f.value
	case opOneOf:
		return strings.Join(f.values, "|")
	default:
		return ""
	}
}

// ParseFilterExpr is the inverse of String.
func ParseFilterExpr(s string) (FilterExpr, error) {
	switch {
	case s == "":
		return FilterExpr{}, fmt.Errorf("empty filter expression")
	case strings.HasPrefix(s, "!"):
		if len(s) == 1 {
			return FilterExpr{}, fmt.Errorf("negation filter missing value")
		}
		return Not(s[1:]), nil
	case strings.Contains(s, "|"):
		return OneOf(strings.Split(s, "|")...), nil
	default:
		return Equals(s), nil
	}
}

// Filters maps alert field names to filter expressions for a snapshot
// fetch. Supported fields are owned by the Alert Store contract.
type Filters map[string]FilterExpr

// EncodeQuery serializes filters into URL query values.
func (f Filters) EncodeQuery(q url.Values) {
	for field, expr := range f {
		if s := expr.String(); s != "" {
			q.Set("filter."+field, s)
		}
	}
}
