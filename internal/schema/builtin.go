package schema

// builtinScalars are present in every schema. Their values are stored in
// records as they appear in the response.
var builtinScalars = []*Type{
	{Name: "String", Kind: TypeKindScalar},
	{Name: "Int", Kind: TypeKindScalar},
	{Name: "Float", Kind: TypeKindScalar},
	{Name: "Boolean", Kind: TypeKindScalar},
	{Name: "ID", Kind: TypeKindScalar},
}

// conditionDirectives are the directives the cache evaluates when it
// collects fields.
var conditionDirectives = []*Directive{
	conditionDirective("include"),
	conditionDirective("skip"),
}

func conditionDirective(name string) *Directive {
	return &Directive{
		Name: name,
		Arguments: []*InputValue{
			{Name: "if", Type: NonNullType(NamedType("Boolean"))},
		},
		Locations: []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
	}
}

func isBuiltin(name string) bool {
	for _, t := range builtinScalars {
		if t.Name == name {
			return true
		}
	}
	return false
}

func isConditionDirective(name string) bool {
	return name == "include" || name == "skip"
}
