package schema

import (
	"fmt"
	"sort"

	language "github.com/hanpama/gqlcache/internal/language"
)

// BuildFromSDL parses an SDL document and returns the corresponding Schema.
// Type extensions are merged into their base definitions. Root operation
// types default to Query, Mutation and Subscription when the document has no
// schema definition.
func BuildFromSDL(name, sdl string) (*Schema, error) {
	doc, err := language.ParseSchema(name, sdl)
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	return BuildFromDocument(doc)
}

// BuildFromDocument builds a Schema from a parsed SDL document.
func BuildFromDocument(doc *language.SchemaDocument) (*Schema, error) {
	s := &Schema{
		Types:      map[string]*Type{},
		Directives: map[string]*Directive{},
	}
	for _, t := range builtinScalars {
		s.Types[t.Name] = t
	}
	for _, d := range conditionDirectives {
		s.Directives[d.Name] = d
	}

	for _, def := range doc.Definitions {
		if _, exists := s.Types[def.Name]; exists && !isBuiltin(def.Name) {
			return nil, fmt.Errorf("type %s defined more than once", def.Name)
		}
		s.Types[def.Name] = buildType(def)
	}
	for _, ext := range doc.Extensions {
		base := s.Types[ext.Name]
		if base == nil {
			return nil, fmt.Errorf("cannot extend undefined type %s", ext.Name)
		}
		extendType(base, ext)
	}
	for _, dir := range doc.Directives {
		s.Directives[dir.Name] = buildDirective(dir)
	}

	for _, def := range append(doc.Schema, doc.SchemaExtension...) {
		for _, op := range def.OperationTypes {
			switch op.Operation {
			case language.Query:
				s.QueryType = op.Type
			case language.Mutation:
				s.MutationType = op.Type
			case language.Subscription:
				s.SubscriptionType = op.Type
			}
		}
	}
	if s.QueryType == "" && s.Types["Query"] != nil {
		s.QueryType = "Query"
	}
	if s.MutationType == "" && s.Types["Mutation"] != nil {
		s.MutationType = "Mutation"
	}
	if s.SubscriptionType == "" && s.Types["Subscription"] != nil {
		s.SubscriptionType = "Subscription"
	}

	linkPossibleTypes(s)
	return s, nil
}


func buildType(def *language.Definition) *Type {
	t := &Type{Name: def.Name, Description: def.Description}
	switch def.Kind {
	case language.Object:
		t.Kind = TypeKindObject
	case language.Interface:
		t.Kind = TypeKindInterface
	case language.Union:
		t.Kind = TypeKindUnion
	case language.Enum:
		t.Kind = TypeKindEnum
	case language.InputObject:
		t.Kind = TypeKindInputObject
	default:
		t.Kind = TypeKindScalar
	}
	extendType(t, def)
	return t
}

func extendType(t *Type, def *language.Definition) {
	t.Interfaces = append(t.Interfaces, def.Interfaces...)
	switch t.Kind {
	case TypeKindInputObject:
		for _, f := range def.Fields {
			t.InputFields = append(t.InputFields, &InputValue{
				Name:         f.Name,
				Description:  f.Description,
				Type:         buildTypeRef(f.Type),
				DefaultValue: language.ValueToGo(f.DefaultValue, nil),
			})
		}
	case TypeKindObject, TypeKindInterface:
		for _, f := range def.Fields {
			t.Fields = append(t.Fields, buildField(f))
		}
	case TypeKindUnion:
		t.PossibleTypes = append(t.PossibleTypes, def.Types...)
	case TypeKindEnum:
		for _, v := range def.EnumValues {
			t.EnumValues = append(t.EnumValues, &EnumValue{Name: v.Name, Description: v.Description})
		}
	}
}

func buildField(def *language.FieldDefinition) *Field {
	f := &Field{Name: def.Name, Description: def.Description, Type: buildTypeRef(def.Type)}
	for _, arg := range def.Arguments {
		f.Arguments = append(f.Arguments, &InputValue{
			Name:         arg.Name,
			Description:  arg.Description,
			Type:         buildTypeRef(arg.Type),
			DefaultValue: language.ValueToGo(arg.DefaultValue, nil),
		})
	}
	if dep := def.Directives.ForName("deprecated"); dep != nil {
		f.IsDeprecated = true
		if reason := dep.Arguments.ForName("reason"); reason != nil {
			f.DeprecationReason = reason.Value.Raw
		}
	}
	return f
}

func buildTypeRef(t *language.Type) *TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return NonNullType(buildTypeRef(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return NamedType(t.NamedType)
	}
	return ListType(buildTypeRef(t.Elem))
}

func buildDirective(def *language.DirectiveDefinition) *Directive {
	d := &Directive{Name: def.Name, Description: def.Description, IsRepeatable: def.IsRepeatable}
	for _, loc := range def.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, arg := range def.Arguments {
		d.Arguments = append(d.Arguments, &InputValue{
			Name:        arg.Name,
			Description: arg.Description,
			Type:        buildTypeRef(arg.Type),
		})
	}
	return d
}

// linkPossibleTypes fills PossibleTypes of interfaces from the objects that
// implement them.
func linkPossibleTypes(s *Schema) {
	names := s.sortedTypeNames()
	for _, name := range names {
		t := s.Types[name]
		if t.Kind != TypeKindObject {
			continue
		}
		for _, iface := range t.Interfaces {
			if it := s.Types[iface]; it != nil && it.Kind == TypeKindInterface {
				it.PossibleTypes = append(it.PossibleTypes, t.Name)
			}
		}
	}
	for _, name := range names {
		sort.Strings(s.Types[name].PossibleTypes)
	}
}
