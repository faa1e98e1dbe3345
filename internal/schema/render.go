package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render prints the output side of s as SDL: every type a response can
// carry, sorted by name. Input types, built-in scalars and directive
// definitions are left out. Object and interface types that declare one of
// keyFields are annotated with the field their cache key is built from;
// the others are stored under their parent's path unless a key generator
// says otherwise.
func Render(s *Schema, keyFields []string) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	for _, name := range s.sortedTypeNames() {
		typ := s.Types[name]
		if isBuiltin(name) {
			continue
		}
		switch typ.Kind {
		case TypeKindScalar:
			renderDescription(&b, typ.Description)
			fmt.Fprintf(&b, "scalar %s\n\n", typ.Name)
		case TypeKindEnum:
			renderEnum(&b, typ)
		case TypeKindObject, TypeKindInterface:
			renderComposite(&b, s, typ, keyFields)
		case TypeKindUnion:
			renderDescription(&b, typ.Description)
			fmt.Fprintf(&b, "union %s = %s\n\n", typ.Name, strings.Join(typ.PossibleTypes, " | "))
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// KeyField returns the first of keyFields that typ declares, or "".
func KeyField(typ *Type, keyFields []string) string {
	for _, name := range keyFields {
		for _, f := range typ.Fields {
			if f.Name == name {
				return name
			}
		}
	}
	return ""
}

func renderDescription(b *strings.Builder, desc string) {
	if desc == "" {
		return
	}
	b.WriteString(`"""` + "\n")
	b.WriteString(strings.ReplaceAll(desc, `"""`, `\"""`))
	b.WriteString("\n" + `"""` + "\n")
}

func renderEnum(b *strings.Builder, typ *Type) {
	renderDescription(b, typ.Description)
	fmt.Fprintf(b, "enum %s {\n", typ.Name)
	for _, val := range typ.EnumValues {
		b.WriteString("  " + val.Name)
		renderDeprecation(b, val.IsDeprecated, val.DeprecationReason)
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
}

func renderComposite(b *strings.Builder, s *Schema, typ *Type, keyFields []string) {
	if key := KeyField(typ, keyFields); key != "" {
		fmt.Fprintf(b, "# cache key: %s:<%s>\n", typ.Name, key)
	} else if s.isRootType(typ.Name) {
		b.WriteString("# cache key: root\n")
	}
	renderDescription(b, typ.Description)
	keyword := "type"
	if typ.Kind == TypeKindInterface {
		keyword = "interface"
	}
	b.WriteString(keyword + " " + typ.Name)
	if len(typ.Interfaces) > 0 {
		b.WriteString(" implements " + strings.Join(typ.Interfaces, " & "))
	}
	b.WriteString(" {\n")
	for _, field := range typ.Fields {
		renderField(b, s, field)
	}
	b.WriteString("}\n\n")
}

func renderField(b *strings.Builder, s *Schema, field *Field) {
	renderDescription(b, field.Description)
	b.WriteString("  " + field.Name)
	if len(field.Arguments) > 0 {
		args := make([]string, len(field.Arguments))
		for i, arg := range field.Arguments {
			args[i] = arg.Name + ": " + renderTypeRef(arg.Type)
			if arg.DefaultValue != nil {
				args[i] += " = " + s.renderValue(arg.Type.GetNamedType(), arg.DefaultValue)
			}
		}
		b.WriteString("(" + strings.Join(args, ", ") + ")")
	}
	b.WriteString(": " + renderTypeRef(field.Type))
	renderDeprecation(b, field.IsDeprecated, field.DeprecationReason)
	b.WriteString("\n")
}

func renderDeprecation(b *strings.Builder, deprecated bool, reason string) {
	if !deprecated {
		return
	}
	b.WriteString(" @deprecated")
	if reason != "" {
		fmt.Fprintf(b, "(reason: %q)", reason)
	}
}

func renderTypeRef(t *TypeRef) string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypeRefKindList:
		return "[" + renderTypeRef(t.OfType) + "]"
	case TypeRefKindNonNull:
		return renderTypeRef(t.OfType) + "!"
	default:
		return t.Named
	}
}

// renderValue prints a default value of the named type. Enum values are
// parsed into plain strings, so the type decides whether a string is quoted.
func (s *Schema) renderValue(typeName string, value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		if t := s.Types[typeName]; t != nil && t.Kind == TypeKindEnum {
			return v
		}
		return strconv.Quote(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = s.renderValue(typeName, item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + s.renderValue(s.inputFieldType(typeName, k), v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}

func (s *Schema) inputFieldType(typeName, field string) string {
	if t := s.Types[typeName]; t != nil {
		for _, f := range t.InputFields {
			if f.Name == field {
				return f.Type.GetNamedType()
			}
		}
	}
	return ""
}

func (s *Schema) isRootType(name string) bool {
	return name != "" && (name == s.QueryType || name == s.MutationType || name == s.SubscriptionType)
}
