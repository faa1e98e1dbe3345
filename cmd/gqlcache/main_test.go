package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const testSDL = `
interface Character { id: ID! name: String friends: [Character] }
type Human implements Character { id: ID! name: String friends: [Character] homePlanet: String }
type Droid implements Character { id: ID! name: String friends: [Character] primaryFunction: String }
type Query { hero(episode: String): Character }
`

const testQuery = `query Hero($ep: String) {
  hero(episode: $ep) {
    id
    name
    ... on Droid { primaryFunction }
    friends { id name }
  }
}`

const testData = `{"hero":{"__typename":"Droid","id":"2001","name":"R2-D2","primaryFunction":"Astromech",
"friends":[{"__typename":"Human","id":"1000","name":"Luke"},{"__typename":"Human","id":"1002","name":"Han"}]}}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNormalizeThenRead(t *testing.T) {
	t.Setenv("GQLCACHE_LOG_LEVEL", "error")
	dir := t.TempDir()
	schemaFile := writeFile(t, dir, "schema.graphql", testSDL)
	queryFile := writeFile(t, dir, "hero.graphql", testQuery)
	recordsFile := filepath.Join(dir, "records.json")

	var out bytes.Buffer
	err := run([]string{"normalize",
		"-schema", schemaFile,
		"-query", queryFile,
		"-variables", `{"ep":"NEWHOPE"}`,
		"-out", recordsFile,
	}, strings.NewReader(testData), &out)
	require.NoError(t, err)
	require.Empty(t, out.String())

	raw, err := os.ReadFile(recordsFile)
	require.NoError(t, err)
	var records map[string]any
	require.NoError(t, json.Unmarshal(raw, &records))
	for _, key := range []string{"QUERY_ROOT", "Droid:2001", "Human:1000", "Human:1002"} {
		require.Contains(t, records, key)
	}

	out.Reset()
	err = run([]string{"read",
		"-schema", schemaFile,
		"-query", queryFile,
		"-variables", `{"ep":"NEWHOPE"}`,
		"-records", recordsFile,
	}, nil, &out)
	require.NoError(t, err)

	var want, got map[string]any
	require.NoError(t, json.Unmarshal([]byte(testData), &want))
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("read mismatch (-want +got):\n%s", diff)
	}

	t.Run("other variables miss", func(t *testing.T) {
		err := run([]string{"read",
			"-schema", schemaFile,
			"-query", queryFile,
			"-records", recordsFile,
		}, nil, new(bytes.Buffer))
		require.ErrorContains(t, err, "cache miss")
	})
}

func TestSchemaCommand(t *testing.T) {
	dir := t.TempDir()
	schemaFile := writeFile(t, dir, "schema.graphql", testSDL)

	var out bytes.Buffer
	require.NoError(t, run([]string{"schema", "-schema", schemaFile}, nil, &out))
	require.Contains(t, out.String(), "# cache key: Human:<id>\ntype Human implements Character {")
	require.Contains(t, out.String(), "# cache key: root\ntype Query {")
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"help"}, nil, &out))
	require.Contains(t, out.String(), "COMMANDS:")

	out.Reset()
	require.NoError(t, run([]string{"help", "read"}, nil, &out))
	require.Contains(t, out.String(), "-records <file>")

	require.Error(t, run([]string{"help", "nope"}, nil, &out))
}

func TestRunErrors(t *testing.T) {
	require.ErrorContains(t, run(nil, nil, new(bytes.Buffer)), "missing command")
	require.ErrorContains(t, run([]string{"serve"}, nil, new(bytes.Buffer)), `unknown command "serve"`)
	require.ErrorContains(t, run([]string{"normalize"}, strings.NewReader("{}"), new(bytes.Buffer)), "-schema and -query are required")
	require.ErrorContains(t, run([]string{"read", "-schema", "x"}, nil, new(bytes.Buffer)), "-records is required")
}
