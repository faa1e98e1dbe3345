package selection

// SupertypesOracle answers which type conditions a concrete type satisfies.
// SupertypesOf returns nil when the type is unknown; type conditions then
// only match the exact type name.
type SupertypesOracle interface {
	SupertypesOf(typeName string) []string
}

// CollectedField groups every field node that shares a response name.
type CollectedField struct {
	ResponseName string
	Fields       []*Field
}

// Field returns the first node, which carries the name and arguments.
func (cf CollectedField) Field() *Field { return cf.Fields[0] }

// Selections returns the union of the sub-selections of all nodes.
func (cf CollectedField) Selections() Set {
	if len(cf.Fields) == 1 {
		return cf.Fields[0].Selections
	}
	var merged Set
	for _, f := range cf.Fields {
		merged = append(merged, f.Selections...)
	}
	return merged
}

// collectedFieldMap preserves field order from the original query
type collectedFieldMap struct {
	fields []CollectedField
	index  map[string]int
}

func newCollectedFieldMap() *collectedFieldMap {
	return &collectedFieldMap{index: make(map[string]int)}
}

func (cfm *collectedFieldMap) add(field *Field) {
	responseName := field.ResponseName()
	if idx, exists := cfm.index[responseName]; exists {
		cfm.fields[idx].Fields = append(cfm.fields[idx].Fields, field)
		return
	}
	cfm.index[responseName] = len(cfm.fields)
	cfm.fields = append(cfm.fields, CollectedField{ResponseName: responseName, Fields: []*Field{field}})
}

// Collector resolves which fields of a selection set apply to a concrete type.
type Collector struct {
	Oracle    SupertypesOracle
	Fragments Fragments
	Variables map[string]any
}

// Collect returns the fields of set that apply to an object of type
// typename, grouped by response name in order of first occurrence. An empty
// typename matches only fragments without a type condition.
func (c *Collector) Collect(set Set, typename string) []CollectedField {
	grouped := newCollectedFieldMap()
	visited := make(map[string]bool)
	var supertypes []string
	if c.Oracle != nil && typename != "" {
		supertypes = c.Oracle.SupertypesOf(typename)
	}
	c.collect(set, typename, supertypes, grouped, visited)
	return grouped.fields
}

func (c *Collector) collect(set Set, typename string, supertypes []string, grouped *collectedFieldMap, visited map[string]bool) {
	for _, selection := range set {
		switch sel := selection.(type) {
		case *Field:
			if !c.shouldInclude(sel.Directives) {
				continue
			}
			grouped.add(sel)

		case *InlineFragment:
			if !c.shouldInclude(sel.Directives) {
				continue
			}
			if !typeConditionApplies(sel.TypeCondition, typename, supertypes) {
				continue
			}
			c.collect(sel.Selections, typename, supertypes, grouped, visited)

		case *FragmentSpread:
			if !c.shouldInclude(sel.Directives) {
				continue
			}
			if visited[sel.Name] {
				continue
			}
			visited[sel.Name] = true

			fragment := c.Fragments[sel.Name]
			if fragment == nil {
				continue
			}
			if !typeConditionApplies(fragment.TypeCondition, typename, supertypes) {
				continue
			}
			if !c.shouldInclude(fragment.Directives) {
				continue
			}
			c.collect(fragment.Selections, typename, supertypes, grouped, visited)
		}
	}
}

func typeConditionApplies(condition, typename string, supertypes []string) bool {
	if condition == "" {
		return true
	}
	if typename == "" {
		return false
	}
	if condition == typename {
		return true
	}
	for _, s := range supertypes {
		if s == condition {
			return true
		}
	}
	return false
}

// shouldInclude evaluates @skip and @include. A condition that does not
// resolve to a boolean leaves the node included.
func (c *Collector) shouldInclude(conditions []Condition) bool {
	for _, cond := range conditions {
		v, ok := c.conditionValue(cond.Value)
		if !ok {
			continue
		}
		if cond.Skip && v {
			return false
		}
		if !cond.Skip && !v {
			return false
		}
	}
	return true
}

func (c *Collector) conditionValue(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case Variable:
		b, ok := c.Variables[v.Name].(bool)
		return b, ok
	default:
		return false, false
	}
}
