package selection

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	schema "github.com/hanpama/gqlcache/internal/schema"
)

const testSDL = `
interface Character { id: ID! name: String friends: [Character] }
type Human implements Character { id: ID! name: String friends: [Character] homePlanet: String }
type Droid implements Character { id: ID! name: String friends: [Character] primaryFunction: String }
type Query { hero(episode: String): Character search(filter: SearchFilter): [Character!]! }
input SearchFilter { name: String limit: Int }
`

func mustSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.BuildFromSDL("test.graphql", testSDL)
	require.NoError(t, err)
	return s
}

func mustOperation(t *testing.T, q string, sch *schema.Schema) *Operation {
	t.Helper()
	op, err := ParseOperation(q, "", sch)
	require.NoError(t, err)
	return op
}

func responseNames(fields []CollectedField) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.ResponseName
	}
	return out
}

func heroSelections(t *testing.T, op *Operation) Set {
	t.Helper()
	c := &Collector{Fragments: op.Fragments}
	root := c.Collect(op.Selections, op.RootTypename)
	require.Len(t, root, 1)
	return root[0].Selections()
}

func TestCompile(t *testing.T) {
	sch := mustSchema(t)
	op := mustOperation(t, `query Hero($ep: String = "JEDI") { hero(episode: $ep) { name best: name } }`, sch)

	require.Equal(t, "Hero", op.Name)
	require.Equal(t, KindQuery, op.Kind)
	require.Equal(t, "Query", op.RootTypename)
	require.Equal(t, map[string]any{"ep": "JEDI"}, op.VariableDefaults)

	hero := op.Selections[0].(*Field)
	want := &Field{
		Name:      "hero",
		Arguments: []Argument{{Name: "episode", Value: Variable{Name: "ep"}}},
		Type:      "Character",
		Selections: Set{
			&Field{Name: "__typename", Type: "String", NonNull: true},
			&Field{Name: "name", Type: "String"},
			&Field{Name: "name", Alias: "best", Type: "String"},
		},
	}
	if diff := cmp.Diff(want, hero); diff != "" {
		t.Fatalf("compiled field mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile_KeepsExistingTypename(t *testing.T) {
	op := mustOperation(t, `{ hero { __typename id } }`, nil)
	sels := op.Selections[0].(*Field).Selections
	require.Len(t, sels, 2)
	require.Equal(t, "__typename", sels[0].(*Field).Name)
}

func TestCollect_TypeConditions(t *testing.T) {
	sch := mustSchema(t)
	op := mustOperation(t, `{
		hero {
			id
			... on Droid { primaryFunction }
			... on Human { homePlanet }
			... on Character { name }
			...HumanFields
		}
	}
	fragment HumanFields on Human { homePlanet friends { id } }`, sch)
	sels := heroSelections(t, op)

	t.Run("with oracle", func(t *testing.T) {
		c := &Collector{Oracle: sch, Fragments: op.Fragments}
		if diff := cmp.Diff([]string{"__typename", "id", "primaryFunction", "name"}, responseNames(c.Collect(sels, "Droid"))); diff != "" {
			t.Fatalf("collected fields mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"__typename", "id", "homePlanet", "name", "friends"}, responseNames(c.Collect(sels, "Human"))); diff != "" {
			t.Fatalf("collected fields mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("without oracle only exact matches apply", func(t *testing.T) {
		c := &Collector{Fragments: op.Fragments}
		if diff := cmp.Diff([]string{"__typename", "id", "primaryFunction"}, responseNames(c.Collect(sels, "Droid"))); diff != "" {
			t.Fatalf("collected fields mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown typename keeps unconditioned fields", func(t *testing.T) {
		c := &Collector{Oracle: sch, Fragments: op.Fragments}
		if diff := cmp.Diff([]string{"__typename", "id"}, responseNames(c.Collect(sels, ""))); diff != "" {
			t.Fatalf("collected fields mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestCollect_MergesSubSelections(t *testing.T) {
	sch := mustSchema(t)
	op := mustOperation(t, `{
		hero {
			friends { id }
			... on Droid { friends { name } }
		}
	}`, sch)
	c := &Collector{Oracle: sch, Fragments: op.Fragments}
	fields := c.Collect(heroSelections(t, op), "Droid")
	require.Equal(t, []string{"__typename", "friends"}, responseNames(fields))

	friends := fields[1]
	require.Len(t, friends.Fields, 2)
	merged := c.Collect(friends.Selections(), "Human")
	if diff := cmp.Diff([]string{"__typename", "id", "name"}, responseNames(merged)); diff != "" {
		t.Fatalf("merged sub-selection mismatch (-want +got):\n%s", diff)
	}
}

func TestCollect_Directives(t *testing.T) {
	op := mustOperation(t, `query($flag: Boolean, $other: Boolean) {
		a
		b @skip(if: true)
		c @include(if: false)
		d @include(if: $flag)
		e @skip(if: $flag)
		f @include(if: $missing)
		... @include(if: $other) { g }
		...Frag @skip(if: $other)
	}
	fragment Frag on Query { h }`, nil)

	cases := []struct {
		name string
		vars map[string]any
		want []string
	}{
		{"flag true", map[string]any{"flag": true, "other": true}, []string{"a", "d", "f", "g"}},
		{"flag false", map[string]any{"flag": false, "other": false}, []string{"a", "e", "f", "__typename", "h"}},
		{"unbound", map[string]any{}, []string{"a", "d", "e", "f", "g", "__typename", "h"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Collector{Fragments: op.Fragments, Variables: tc.vars}
			got := responseNames(c.Collect(op.Selections, op.RootTypename))
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("collected fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFieldKey(t *testing.T) {
	op := mustOperation(t, `query($ep: String, $limit: Int) {
		plain: hero
		a: hero(episode: $ep)
		b: search(filter: {limit: $limit, name: "R2"})
		c: search(filter: {name: "R2", limit: 2})
	}`, nil)
	vars := map[string]any{"limit": int64(2)}

	keys := map[string]string{}
	for _, s := range op.Selections {
		f := s.(*Field)
		key, err := FieldKey(f, vars)
		require.NoError(t, err)
		keys[f.ResponseName()] = key
	}
	want := map[string]string{
		"plain": "hero",
		"a":     "hero",
		"b":     `search({"filter":{"limit":2,"name":"R2"}})`,
		"c":     `search({"filter":{"limit":2,"name":"R2"}})`,
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("field keys mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileFragment(t *testing.T) {
	sch := mustSchema(t)
	op, err := ParseFragment(`fragment DroidFields on Droid { name ...More } fragment More on Droid { primaryFunction }`, "DroidFields", sch)
	require.NoError(t, err)
	require.Equal(t, KindFragment, op.Kind)
	require.Equal(t, "Droid", op.RootTypename)

	c := &Collector{Oracle: sch, Fragments: op.Fragments}
	got := responseNames(c.Collect(op.Selections, "Droid"))
	if diff := cmp.Diff([]string{"__typename", "name", "primaryFunction"}, got); diff != "" {
		t.Fatalf("collected fields mismatch (-want +got):\n%s", diff)
	}
}
