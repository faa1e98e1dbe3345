package language

import "strconv"

// ValueToGo converts an AST value to a Go value. Variable occurrences are
// replaced by whatever onVariable returns for the variable name.
func ValueToGo(value *Value, onVariable func(name string) any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case Variable:
		if onVariable == nil {
			return nil
		}
		return onVariable(value.Raw)
	case IntValue:
		if iv, err := strconv.ParseInt(value.Raw, 10, 64); err == nil {
			return iv
		}
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case StringValue, BlockValue:
		return value.Raw
	case BooleanValue:
		return value.Raw == "true"
	case NullValue:
		return nil
	case EnumValue:
		return value.Raw
	case ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = ValueToGo(c.Value, onVariable)
		}
		return out
	case ObjectValue:
		m := make(map[string]any, len(value.Children))
		for _, f := range value.Children {
			m[f.Name] = ValueToGo(f.Value, onVariable)
		}
		return m
	default:
		return nil
	}
}
