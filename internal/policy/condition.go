package policy

import (
	"github.com/riskcore/fraudengine/internal/models"
)

// suffixOperator maps a field-name suffix to a comparator, generalizing the
// engine's fixed operator column into the field name itself: a rule author
// writes "blended_score_gte" rather than {field: blended_score, operator: >=},
// so new comparable fields never require new operator plumbing.
var suffixOperator = map[string]func(a, b float64) bool{
	"_gte": func(a, b float64) bool { return a >= b },
	"_gt":  func(a, b float64) bool { return a > b },
	"_lte": func(a, b float64) bool { return a <= b },
	"_lt":  func(a, b float64) bool { return a < b },
	"_ne":  func(a, b float64) bool { return a != b },
	"_eq":  func(a, b float64) bool { return a == b },
}

func (e *Engine) evaluateCondition(cond models.RuleCondition, ctx Context) bool {
	switch cond.Type {
	case "threshold":
		return e.evaluateThreshold(cond, ctx)
	case "compound":
		return e.evaluateCompound(cond, ctx)
	case "time_range":
		return e.evaluateTimeRange(cond, ctx)
	default:
		return false
	}
}

func (e *Engine) evaluateThreshold(cond models.RuleCondition, ctx Context) bool {
	baseField, cmp := splitSuffix(cond.Field)
	if cmp == nil {
		cmp = func(a, b float64) bool { return a == b }
	}

	fieldValue, ok := ctx.field(baseField)
	if !ok {
		return false
	}

	switch v := fieldValue.(type) {
	case float64:
		target, ok := toFloat(cond.Value)
		if !ok {
			return false
		}
		return cmp(v, target)
	case bool:
		target, ok := cond.Value.(bool)
		if !ok {
			return false
		}
		if target {
			return v
		}
		return !v
	default:
		return false
	}
}

func splitSuffix(field string) (string, func(a, b float64) bool) {
	for suffix, cmp := range suffixOperator {
		if len(field) > len(suffix) && field[len(field)-len(suffix):] == suffix {
			return field[:len(field)-len(suffix)], cmp
		}
	}
	return field, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func (e *Engine) evaluateCompound(cond models.RuleCondition, ctx Context) bool {
	if len(cond.Conditions) == 0 {
		return false
	}

	switch cond.Operator {
	case "and":
		for _, sub := range cond.Conditions {
			if !e.evaluateCondition(sub, ctx) {
				return false
			}
		}
		return true
	case "or":
		for _, sub := range cond.Conditions {
			if e.evaluateCondition(sub, ctx) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (e *Engine) evaluateTimeRange(cond models.RuleCondition, ctx Context) bool {
	return ctx.Hour >= cond.StartHour && ctx.Hour < cond.EndHour
}
