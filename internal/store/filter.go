package store

import (
	"fmt"

	"github.com/Aman-CERP/reporag/internal/errors"
)

// Filter is a metadata filter in operator form, e.g.
//
//	Filter{"language": {"$eq": "python"}, "depth": {"$lte": 2}}
//
// Supported operators: $eq, $in, $lte, $gte, $lt, $gt.
type Filter map[string]map[string]any

// Eq builds a single-field equality filter.
func Eq(field string, value any) Filter {
	return Filter{field: {"$eq": value}}
}

// Merge combines filters; later fields override earlier ones.
func Merge(filters ...Filter) Filter {
	out := Filter{}
	for _, f := range filters {
		for field, cond := range f {
			out[field] = cond
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Match evaluates the filter against metadata. All fields must pass
// (conjunction). Unknown fields or operators yield a FilterError.
func Match(m *Metadata, filter Filter) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	for field, conds := range filter {
		value, ok := m.Field(field)
		if !ok {
			return false, errors.Newf(errors.KindFilter, "unknown filter field %q", field)
		}
		for op, operand := range conds {
			pass, err := evalOp(op, value, operand)
			if err != nil {
				return false, err
			}
			if !pass {
				return false, nil
			}
		}
	}
	return true, nil
}

// evalOp applies one operator to a field value.
func evalOp(op string, value, operand any) (bool, error) {
	switch op {
	case "$eq":
		return equalValues(value, operand), nil
	case "$in":
		items, ok := operand.([]any)
		if !ok {
			items = toAnySlice(operand)
		}
		if items == nil {
			return false, errors.Newf(errors.KindFilter, "$in operand must be a list, got %T", operand)
		}
		for _, item := range items {
			if equalValues(value, item) {
				return true, nil
			}
		}
		return false, nil
	case "$lte", "$gte", "$lt", "$gt":
		a, aok := toFloat(value)
		b, bok := toFloat(operand)
		if !aok || !bok {
			return false, errors.Newf(errors.KindFilter, "%s requires numeric operands, got %T and %T", op, value, operand)
		}
		switch op {
		case "$lte":
			return a <= b, nil
		case "$gte":
			return a >= b, nil
		case "$lt":
			return a < b, nil
		default:
			return a > b, nil
		}
	}
	return false, errors.Newf(errors.KindFilter, "unsupported filter operator %q", op)
}

// equalValues compares with numeric coercion so 2 == 2.0 across JSON decoding.
func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// toFloat coerces numeric types (including JSON's float64) to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// toAnySlice widens typed slices for $in evaluation.
func toAnySlice(v any) []any {
	switch s := v.(type) {
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	case []int:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	}
	return nil
}
