package selection

import (
	"fmt"

	language "github.com/hanpama/gqlcache/internal/language"
	schema "github.com/hanpama/gqlcache/internal/schema"
)

const typenameField = "__typename"

// ParseOperation parses query and compiles the named operation (or the only
// one when operationName is empty). sch may be nil.
func ParseOperation(query, operationName string, sch *schema.Schema) (*Operation, error) {
	doc, err := language.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	return Compile(doc, operationName, sch)
}

// ParseFragment parses document and compiles the named fragment.
func ParseFragment(document, fragmentName string, sch *schema.Schema) (*Operation, error) {
	doc, err := language.ParseQuery(document)
	if err != nil {
		return nil, err
	}
	return CompileFragment(doc, fragmentName, sch)
}

// Compile turns an operation of a parsed document into a selection tree.
// Every composite selection set below the root gets a __typename field when
// it does not select one, so that stored records always know their type.
// When sch is non-nil, fields carry their return type and nullability.
func Compile(doc *language.QueryDocument, operationName string, sch *schema.Schema) (*Operation, error) {
	operation := getOperation(doc, operationName)
	if operation == nil {
		return nil, fmt.Errorf("operation %q not found", operationName)
	}

	kind := OperationKind(operation.Operation)
	rootTypename := defaultRootTypename(kind)
	if sch != nil {
		if name := sch.RootTypeName(string(kind)); name != "" {
			rootTypename = name
		}
	}

	c := &compiler{schema: sch}
	op := &Operation{
		Name:             operation.Name,
		Kind:             kind,
		RootTypename:     rootTypename,
		Selections:       c.compileSet(operation.SelectionSet, rootTypename),
		Fragments:        c.compileFragments(doc),
		VariableDefaults: map[string]any{},
	}
	for _, v := range operation.VariableDefinitions {
		if v.DefaultValue != nil {
			op.VariableDefaults[v.Variable] = language.ValueToGo(v.DefaultValue, nil)
		}
	}
	return op, nil
}

// CompileFragment compiles a fragment definition as a standalone selection
// tree rooted at an object of the fragment's type condition.
func CompileFragment(doc *language.QueryDocument, fragmentName string, sch *schema.Schema) (*Operation, error) {
	def := doc.Fragments.ForName(fragmentName)
	if def == nil {
		return nil, fmt.Errorf("fragment %q not found", fragmentName)
	}
	c := &compiler{schema: sch}
	fragments := c.compileFragments(doc)
	return &Operation{
		Name:             fragmentName,
		Kind:             KindFragment,
		RootTypename:     def.TypeCondition,
		Selections:       fragments[fragmentName].Selections,
		Fragments:        fragments,
		VariableDefaults: map[string]any{},
	}, nil
}

func defaultRootTypename(kind OperationKind) string {
	switch kind {
	case KindMutation:
		return "Mutation"
	case KindSubscription:
		return "Subscription"
	default:
		return "Query"
	}
}

func getOperation(document *language.QueryDocument, operationName string) *language.OperationDefinition {
	if operationName == "" && len(document.Operations) == 1 {
		return document.Operations[0]
	}
	for _, op := range document.Operations {
		if op.Name == operationName {
			return op
		}
	}
	return nil
}

type compiler struct {
	schema *schema.Schema
}

func (c *compiler) compileFragments(doc *language.QueryDocument) Fragments {
	fragments := make(Fragments, len(doc.Fragments))
	for _, def := range doc.Fragments {
		fragments[def.Name] = &Fragment{
			Name:          def.Name,
			TypeCondition: def.TypeCondition,
			Directives:    compileConditions(def.Directives),
			Selections:    withTypename(c.compileSet(def.SelectionSet, def.TypeCondition)),
		}
	}
	return fragments
}

func (c *compiler) compileSet(set language.SelectionSet, parentType string) Set {
	out := make(Set, 0, len(set))
	for _, selection := range set {
		switch sel := selection.(type) {
		case *language.Field:
			out = append(out, c.compileField(sel, parentType))
		case *language.InlineFragment:
			typeCondition := sel.TypeCondition
			inner := parentType
			if typeCondition != "" {
				inner = typeCondition
			}
			out = append(out, &InlineFragment{
				TypeCondition: typeCondition,
				Directives:    compileConditions(sel.Directives),
				Selections:    c.compileSet(sel.SelectionSet, inner),
			})
		case *language.FragmentSpread:
			out = append(out, &FragmentSpread{
				Name:       sel.Name,
				Directives: compileConditions(sel.Directives),
			})
		}
	}
	return out
}

func (c *compiler) compileField(sel *language.Field, parentType string) *Field {
	f := &Field{
		Name:       sel.Name,
		Directives: compileConditions(sel.Directives),
	}
	if sel.Alias != sel.Name {
		f.Alias = sel.Alias
	}
	for _, arg := range sel.Arguments {
		f.Arguments = append(f.Arguments, Argument{Name: arg.Name, Value: astValue(arg.Value)})
	}

	if sel.Name == typenameField {
		f.Type = "String"
		f.NonNull = true
	} else if c.schema != nil {
		if def := c.schema.FieldDefinition(parentType, sel.Name); def != nil {
			f.Type = def.Type.GetNamedType()
			f.NonNull = def.Type.IsNonNull()
		}
	}

	if len(sel.SelectionSet) > 0 {
		f.Selections = withTypename(c.compileSet(sel.SelectionSet, f.Type))
	}
	return f
}

// withTypename prepends a __typename field unless the set already selects
// one under its own name.
func withTypename(set Set) Set {
	for _, s := range set {
		if f, ok := s.(*Field); ok && f.Name == typenameField && f.Alias == "" && len(f.Directives) == 0 {
			return set
		}
	}
	out := make(Set, 0, len(set)+1)
	out = append(out, &Field{Name: typenameField, Type: "String", NonNull: true})
	return append(out, set...)
}

func compileConditions(directives language.DirectiveList) []Condition {
	var out []Condition
	for _, d := range directives {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		cond := Condition{Skip: d.Name == "skip"}
		if arg := d.Arguments.ForName("if"); arg != nil {
			cond.Value = astValue(arg.Value)
		}
		out = append(out, cond)
	}
	return out
}

func astValue(v *language.Value) any {
	return language.ValueToGo(v, func(name string) any { return Variable{Name: name} })
}
