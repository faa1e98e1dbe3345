package selection

import (
	"encoding/json"
	"fmt"
)

// ResolveArguments substitutes variables into the field's arguments.
// Arguments bound to a variable that has no value are left out.
func ResolveArguments(f *Field, vars map[string]any) map[string]any {
	if len(f.Arguments) == 0 {
		return nil
	}
	out := make(map[string]any, len(f.Arguments))
	for _, arg := range f.Arguments {
		if v, ok := arg.Value.(Variable); ok {
			value, bound := vars[v.Name]
			if !bound {
				continue
			}
			out[arg.Name] = value
			continue
		}
		out[arg.Name] = resolveValue(arg.Value, vars)
	}
	return out
}

func resolveValue(value any, vars map[string]any) any {
	switch v := value.(type) {
	case Variable:
		return vars[v.Name]
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolveValue(item, vars)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = resolveValue(item, vars)
		}
		return out
	default:
		return value
	}
}

// FieldKey returns the key a field's value is stored under: the field name,
// followed by the canonical JSON encoding of its resolved arguments when it
// has any. Object keys are sorted, so equal arguments always produce the same
// key.
func FieldKey(f *Field, vars map[string]any) (string, error) {
	args := ResolveArguments(f, vars)
	if len(args) == 0 {
		return f.Name, nil
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("field %s: encode arguments: %w", f.Name, err)
	}
	return f.Name + "(" + string(encoded) + ")", nil
}
