package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/hanpama/gqlcache/internal/config"
	"github.com/hanpama/gqlcache/internal/eventbus"
	"github.com/hanpama/gqlcache/internal/normalizer"
	"github.com/hanpama/gqlcache/internal/normcache"
	"github.com/hanpama/gqlcache/internal/otel"
	"github.com/hanpama/gqlcache/internal/record"
	"github.com/hanpama/gqlcache/internal/schema"
	"github.com/hanpama/gqlcache/internal/selection"
	"github.com/hanpama/gqlcache/internal/store"
)

const rootUsage = `gqlcache - normalized cache for GraphQL responses

USAGE:
  gqlcache <command> [flags]

COMMANDS:
  normalize        Normalize a response into cache records
  read             Read an operation back from cache records
  schema           Print the schema as normalized SDL
  help             Show help for any command

ENVIRONMENT:
  GQLCACHE_MAX_SIZE_BYTES, GQLCACHE_MAX_ENTRIES, GQLCACHE_EXPIRE_AFTER
  GQLCACHE_LOG_LEVEL, GQLCACHE_LOG_FORMAT
  GQLCACHE_OTEL_ENDPOINT, GQLCACHE_OTEL_SERVICE
`

const normalizeUsage = `normalize FLAGS:
  -schema <file>       GraphQL SDL file (required)
  -query <file>        Document holding the operation (required)
  -operation <name>    Operation to use when the document holds several
  -variables <json>    Operation variables as a JSON object
  -data <file>         Response data object (default: stdin)
  -out <file>          Write records to file (default: stdout)
`

const readUsage = `read FLAGS:
  -schema <file>       GraphQL SDL file (required)
  -query <file>        Document holding the operation (required)
  -operation <name>    Operation to use when the document holds several
  -variables <json>    Operation variables as a JSON object
  -records <file>      Records written by normalize (required)
`

const schemaUsage = `schema FLAGS:
  -schema <file>       GraphQL SDL file (required)
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := args[0]
	cmdArgs := args[1:]
	switch cmd {
	case "normalize":
		return cmdNormalize(cmdArgs, stdin, stdout)
	case "read":
		return cmdRead(cmdArgs, stdout)
	case "schema":
		return cmdSchema(cmdArgs, stdout)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "normalize":
		fmt.Fprint(stdout, normalizeUsage)
	case "read":
		fmt.Fprint(stdout, readUsage)
	case "schema":
		fmt.Fprint(stdout, schemaUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

// operationFlags are shared by normalize and read.
type operationFlags struct {
	schemaFile string
	queryFile  string
	operation  string
	variables  string
}

func (o *operationFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&o.schemaFile, "schema", "", "GraphQL SDL file")
	fs.StringVar(&o.queryFile, "query", "", "Document holding the operation")
	fs.StringVar(&o.operation, "operation", "", "Operation name")
	fs.StringVar(&o.variables, "variables", "", "Operation variables as JSON")
}

func (o *operationFlags) load() (*schema.Schema, *selection.Operation, map[string]any, error) {
	if o.schemaFile == "" || o.queryFile == "" {
		return nil, nil, nil, fmt.Errorf("-schema and -query are required")
	}
	sch, err := loadSchema(o.schemaFile)
	if err != nil {
		return nil, nil, nil, err
	}
	query, err := os.ReadFile(o.queryFile)
	if err != nil {
		return nil, nil, nil, err
	}
	op, err := selection.ParseOperation(string(query), o.operation, sch)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse operation: %w", err)
	}
	var vars map[string]any
	if o.variables != "" {
		if err := json.Unmarshal([]byte(o.variables), &vars); err != nil {
			return nil, nil, nil, fmt.Errorf("parse variables: %w", err)
		}
	}
	return sch, op, vars, nil
}

func loadSchema(path string) (*schema.Schema, error) {
	sdl, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sch, err := schema.BuildFromSDL(path, string(sdl))
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	return sch, nil
}

// newStore builds a store configured from the environment. The returned
// function flushes telemetry.
func newStore(sch *schema.Schema) (*store.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := cfg.Logger()
	bus := eventbus.New()
	shutdown, err := otel.Setup(bus, cfg.OtelEndpoint, cfg.OtelService)
	if err != nil {
		return nil, nil, fmt.Errorf("otel setup: %w", err)
	}
	cache := normcache.NewMemoryCache(cfg.MemoryOptions(logger)...)
	s := store.New(cache,
		store.WithSchema(sch),
		store.WithLogger(logger),
		store.WithBus(bus),
	)
	return s, func() { _ = shutdown(context.Background()) }, nil
}

func cmdNormalize(args []string, stdin io.Reader, stdout io.Writer) error {
	var of operationFlags
	dataFile := ""
	outFile := ""
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	of.register(fs)
	fs.StringVar(&dataFile, "data", dataFile, "Response data object")
	fs.StringVar(&outFile, "out", outFile, "Write records to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, normalizeUsage)
		return err
	}
	sch, op, vars, err := of.load()
	if err != nil {
		fmt.Fprint(os.Stderr, normalizeUsage)
		return err
	}

	in := stdin
	if dataFile != "" {
		f, err := os.Open(dataFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	var data map[string]any
	if err := json.NewDecoder(in).Decode(&data); err != nil {
		return fmt.Errorf("parse data: %w", err)
	}

	s, flush, err := newStore(sch)
	if err != nil {
		return err
	}
	defer flush()

	ctx := context.Background()
	if _, err := s.WriteOperation(ctx, op, data, vars); err != nil {
		return err
	}
	snap, err := s.Dump(ctx)
	if err != nil {
		return err
	}
	out, err := record.MarshalRecords(snap.Base)
	if err != nil {
		return err
	}
	out = append(out, '\n')
	if outFile == "" {
		_, err = stdout.Write(out)
		return err
	}
	return os.WriteFile(outFile, out, 0644)
}

func cmdRead(args []string, stdout io.Writer) error {
	var of operationFlags
	recordsFile := ""
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	of.register(fs)
	fs.StringVar(&recordsFile, "records", recordsFile, "Records written by normalize")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, readUsage)
		return err
	}
	if recordsFile == "" {
		fmt.Fprint(os.Stderr, readUsage)
		return fmt.Errorf("-records is required")
	}
	sch, op, vars, err := of.load()
	if err != nil {
		fmt.Fprint(os.Stderr, readUsage)
		return err
	}
	raw, err := os.ReadFile(recordsFile)
	if err != nil {
		return err
	}
	records, err := record.UnmarshalRecords(raw)
	if err != nil {
		return err
	}

	s, flush, err := newStore(sch)
	if err != nil {
		return err
	}
	defer flush()

	ctx := context.Background()
	if err := s.Restore(ctx, records); err != nil {
		return err
	}
	data, err := s.ReadOperation(ctx, op, vars)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func cmdSchema(args []string, stdout io.Writer) error {
	schemaFile := ""
	fs := flag.NewFlagSet("schema", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&schemaFile, "schema", schemaFile, "GraphQL SDL file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, schemaUsage)
		return err
	}
	if schemaFile == "" {
		fmt.Fprint(os.Stderr, schemaUsage)
		return fmt.Errorf("-schema is required")
	}
	sch, err := loadSchema(schemaFile)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(stdout, schema.Render(sch, normalizer.DefaultKeyGenerator.(normalizer.IDKeyGenerator).IDFields))
	return err
}
