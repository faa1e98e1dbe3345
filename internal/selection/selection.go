// Package selection describes the selection trees that drive normalization
// and denormalization, and implements field collection over them.
//
// A selection tree is compiled once from a GraphQL document (see Compile)
// and is then read by both the write path and the read path. Both paths call
// Collector.Collect with the same inputs, so what a write stores is exactly
// what a later read asks for.
package selection

// Selection is one entry of a selection set: *Field, *InlineFragment or
// *FragmentSpread.
type Selection interface {
	isSelection()
}

// Set is an ordered selection set.
type Set []Selection

// Field is a field selection.
type Field struct {
	Name       string
	Alias      string
	Arguments  []Argument
	Directives []Condition
	Selections Set
	// Type is the named return type of the field when a schema was available
	// at compile time.
	Type string
	// NonNull reports whether the field's return type is Non-Null.
	NonNull bool
}

// ResponseName is the key the field occupies in response data.
func (f *Field) ResponseName() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Argument is a field argument. Value is a JSON-like Go value that may hold
// Variable markers at any depth.
type Argument struct {
	Name  string
	Value any
}

// Variable marks a reference to an operation variable.
type Variable struct {
	Name string
}

// Condition is a @skip (Skip true) or @include (Skip false) directive. Value
// is a bool literal or a Variable.
type Condition struct {
	Skip  bool
	Value any
}

// InlineFragment is an inline fragment, optionally with a type condition.
type InlineFragment struct {
	TypeCondition string
	Directives    []Condition
	Selections    Set
}

// FragmentSpread spreads a named fragment.
type FragmentSpread struct {
	Name       string
	Directives []Condition
}

// Fragment is a named fragment definition.
type Fragment struct {
	Name          string
	TypeCondition string
	Directives    []Condition
	Selections    Set
}

// Fragments indexes fragment definitions by name.
type Fragments map[string]*Fragment

func (*Field) isSelection()          {}
func (*InlineFragment) isSelection() {}
func (*FragmentSpread) isSelection() {}

// OperationKind distinguishes operations from fragments compiled for
// fragment reads and writes.
type OperationKind string

const (
	KindQuery        OperationKind = "query"
	KindMutation     OperationKind = "mutation"
	KindSubscription OperationKind = "subscription"
	KindFragment     OperationKind = "fragment"
)

// Operation is a compiled operation or fragment.
type Operation struct {
	Name string
	Kind OperationKind
	// RootTypename is the root operation type, or the type condition of a
	// compiled fragment.
	RootTypename     string
	Selections       Set
	Fragments        Fragments
	VariableDefaults map[string]any
}

// Variables returns vars completed with the operation's declared defaults.
func (op *Operation) Variables(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars)+len(op.VariableDefaults))
	for k, v := range op.VariableDefaults {
		out[k] = v
	}
	for k, v := range vars {
		out[k] = v
	}
	return out
}
