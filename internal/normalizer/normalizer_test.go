package normalizer

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/gqlcache/internal/record"
	schema "github.com/hanpama/gqlcache/internal/schema"
	"github.com/hanpama/gqlcache/internal/selection"
)

const testSDL = `
interface Character { id: ID! name: String friends: [Character] }
type Human implements Character { id: ID! name: String friends: [Character] homePlanet: String height(unit: String): Float }
type Droid implements Character { id: ID! name: String friends: [Character] primaryFunction: String }
type Coordinates { lat: Float lng: Float }
type Planet { name: String location: Coordinates }
type Query { hero(episode: String): Character planets: [Planet] }
`

func setup(t *testing.T, query string) (*schema.Schema, *selection.Operation) {
	t.Helper()
	sch, err := schema.BuildFromSDL("test.graphql", testSDL)
	require.NoError(t, err)
	op, err := selection.ParseOperation(query, "", sch)
	require.NoError(t, err)
	return sch, op
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &out))
	return out
}

func fields(t *testing.T, records map[string]*record.Record) map[string]map[string]record.Value {
	t.Helper()
	out := make(map[string]map[string]record.Value, len(records))
	for key, r := range records {
		require.Equal(t, key, r.Key)
		out[key] = r.Fields
	}
	return out
}

func TestNormalize_Polymorphism(t *testing.T) {
	sch, op := setup(t, `{ hero { id name ... on Droid { primaryFunction } ... on Human { homePlanet } } }`)
	data := decode(t, `{"hero":{"__typename":"Droid","id":"2001","name":"R2-D2","primaryFunction":"Astromech"}}`)

	records, changed, err := New(Options{Oracle: sch}).Normalize(op, QueryRootKey, data, nil)
	require.NoError(t, err)

	want := map[string]map[string]record.Value{
		"QUERY_ROOT": {"hero": record.Reference("Droid:2001")},
		"Droid:2001": {
			"__typename":      record.String("Droid"),
			"id":              record.String("2001"),
			"name":            record.String("R2-D2"),
			"primaryFunction": record.String("Astromech"),
		},
	}
	if diff := cmp.Diff(want, fields(t, records)); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	wantChanged := []string{
		"Droid:2001.__typename",
		"Droid:2001.id",
		"Droid:2001.name",
		"Droid:2001.primaryFunction",
		"QUERY_ROOT.hero",
	}
	if diff := cmp.Diff(wantChanged, changed.Sorted()); diff != "" {
		t.Fatalf("change set mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_DropsUnselectedData(t *testing.T) {
	sch, op := setup(t, `{ hero { id } }`)
	data := decode(t, `{"hero":{"__typename":"Human","id":"1000","name":"Luke","secret":true},"extra":1}`)

	records, _, err := New(Options{Oracle: sch}).Normalize(op, QueryRootKey, data, nil)
	require.NoError(t, err)

	want := map[string]map[string]record.Value{
		"QUERY_ROOT": {"hero": record.Reference("Human:1000")},
		"Human:1000": {"__typename": record.String("Human"), "id": record.String("1000")},
	}
	if diff := cmp.Diff(want, fields(t, records)); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_Directives(t *testing.T) {
	sch, op := setup(t, `query($flag: Boolean!) { hero { id name @include(if: $flag) } }`)
	data := decode(t, `{"hero":{"__typename":"Human","id":"1000","name":"Luke"}}`)
	n := New(Options{Oracle: sch})

	t.Run("excluded", func(t *testing.T) {
		records, _, err := n.Normalize(op, QueryRootKey, data, map[string]any{"flag": false})
		require.NoError(t, err)
		_, ok := records["Human:1000"].Field("name")
		require.False(t, ok)
	})

	t.Run("included", func(t *testing.T) {
		records, _, err := n.Normalize(op, QueryRootKey, data, map[string]any{"flag": true})
		require.NoError(t, err)
		v, ok := records["Human:1000"].Field("name")
		require.True(t, ok)
		require.Equal(t, record.String("Luke"), v)
	})
}

func TestNormalize_PathFallbackAndArguments(t *testing.T) {
	sch, op := setup(t, `query($unit: String) {
		planets { name location { lat lng } }
		hero(episode: "JEDI") { id ... on Human { height(unit: $unit) } }
	}`)
	data := decode(t, `{
		"planets": [
			{"__typename":"Planet","name":"Tatooine","location":{"__typename":"Coordinates","lat":1.5,"lng":2}},
			null
		],
		"hero": {"__typename":"Human","id":"1000","height":1.72}
	}`)

	records, _, err := New(Options{Oracle: sch}).Normalize(op, QueryRootKey, data, map[string]any{"unit": "METER"})
	require.NoError(t, err)

	want := map[string]map[string]record.Value{
		"QUERY_ROOT": {
			"planets":                 record.List{record.Reference("QUERY_ROOT.planets.0"), record.Null{}},
			`hero({"episode":"JEDI"})`: record.Reference("Human:1000"),
		},
		"QUERY_ROOT.planets.0": {
			"__typename": record.String("Planet"),
			"name":       record.String("Tatooine"),
			"location":   record.Reference("QUERY_ROOT.planets.0.location"),
		},
		"QUERY_ROOT.planets.0.location": {
			"__typename": record.String("Coordinates"),
			"lat":        record.Float(1.5),
			"lng":        record.Float(2),
		},
		"Human:1000": {
			"__typename":               record.String("Human"),
			"id":                       record.String("1000"),
			`height({"unit":"METER"})`: record.Float(1.72),
		},
	}
	if diff := cmp.Diff(want, fields(t, records)); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_KeyContextPath(t *testing.T) {
	sch, op := setup(t, `{
		planets { name location { lat lng } }
		hero(episode: "JEDI") { id friends { id } }
	}`)
	data := decode(t, `{
		"planets": [{"__typename":"Planet","name":"Hoth","location":{"__typename":"Coordinates","lat":0,"lng":1}}],
		"hero": {"__typename":"Human","id":"1000","friends":[{"__typename":"Droid","id":"2001"}]}
	}`)

	var paths []string
	keys := KeyGeneratorFunc(func(obj map[string]any, ctx KeyContext) CacheKey {
		paths = append(paths, ctx.Path)
		return DefaultKeyGenerator.KeyFor(obj, ctx)
	})
	_, _, err := New(Options{Oracle: sch, KeyGenerator: keys}).Normalize(op, QueryRootKey, data, nil)
	require.NoError(t, err)

	want := []string{
		`QUERY_ROOT.hero({"episode":"JEDI"})`,
		"Human:1000.friends.0",
		"QUERY_ROOT.planets.0",
		"QUERY_ROOT.planets.0.location",
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_EmbedTypes(t *testing.T) {
	sch, op := setup(t, `{ planets { name location { lat lng } } }`)
	data := decode(t, `{"planets":[{"__typename":"Planet","name":"Hoth","location":{"__typename":"Coordinates","lat":0,"lng":-1}}]}`)

	n := New(Options{Oracle: sch, KeyGenerator: EmbedTypes{Types: map[string]bool{"Coordinates": true}}})
	records, _, err := n.Normalize(op, QueryRootKey, data, nil)
	require.NoError(t, err)

	require.Len(t, records, 2)
	want := record.Composite{
		"__typename": record.String("Coordinates"),
		"lat":        record.Float(0),
		"lng":        record.Float(-1),
	}
	got, ok := records["QUERY_ROOT.planets.0"].Field("location")
	require.True(t, ok)
	if diff := cmp.Diff(record.Value(want), got); diff != "" {
		t.Fatalf("embedded value mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_SameEntityTwice(t *testing.T) {
	sch, op := setup(t, `{
		hero { id name friends { id } }
		villain: hero(episode: "EMPIRE") { id friends { id name } }
	}`)
	data := decode(t, `{
		"hero": {"__typename":"Human","id":"1000","name":"Luke","friends":[{"__typename":"Droid","id":"2001"}]},
		"villain": {"__typename":"Human","id":"1000","friends":[{"__typename":"Droid","id":"2001","name":"R2-D2"}]}
	}`)

	records, changed, err := New(Options{Oracle: sch}).Normalize(op, QueryRootKey, data, nil)
	require.NoError(t, err)

	want := map[string]map[string]record.Value{
		"QUERY_ROOT": {
			"hero":                       record.Reference("Human:1000"),
			`hero({"episode":"EMPIRE"})`: record.Reference("Human:1000"),
		},
		"Human:1000": {
			"__typename": record.String("Human"),
			"id":         record.String("1000"),
			"name":       record.String("Luke"),
			"friends":    record.List{record.Reference("Droid:2001")},
		},
		"Droid:2001": {
			"__typename": record.String("Droid"),
			"id":         record.String("2001"),
			"name":       record.String("R2-D2"),
		},
	}
	if diff := cmp.Diff(want, fields(t, records)); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	require.True(t, changed.Contains("Droid:2001.name"))
	require.Equal(t, 9, changed.Len())
}

func TestIDKeyGenerator(t *testing.T) {
	g := IDKeyGenerator{IDFields: []string{"id", "uuid"}}
	cases := []struct {
		name string
		obj  map[string]any
		want CacheKey
	}{
		{"string id", map[string]any{"__typename": "User", "id": "u1"}, "User:u1"},
		{"numeric id", map[string]any{"__typename": "User", "id": float64(42)}, "User:42"},
		{"json number", map[string]any{"__typename": "User", "id": json.Number("7")}, "User:7"},
		{"second id field", map[string]any{"__typename": "User", "uuid": "abc"}, "User:abc"},
		{"no typename", map[string]any{"id": "u1"}, ""},
		{"no id", map[string]any{"__typename": "User"}, ""},
		{"object id", map[string]any{"__typename": "User", "id": map[string]any{}}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, g.KeyFor(tc.obj, KeyContext{}))
		})
	}
}

func TestRootKey(t *testing.T) {
	require.Equal(t, QueryRootKey, RootKey(selection.KindQuery))
	require.Equal(t, MutationRootKey, RootKey(selection.KindMutation))
	require.Equal(t, SubscriptionRootKey, RootKey(selection.KindSubscription))
}
