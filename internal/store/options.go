package store

import (
	"log/slog"

	"github.com/hanpama/gqlcache/internal/denormalizer"
	"github.com/hanpama/gqlcache/internal/eventbus"
	"github.com/hanpama/gqlcache/internal/normalizer"
	"github.com/hanpama/gqlcache/internal/record"
	"github.com/hanpama/gqlcache/internal/selection"
)

type config struct {
	keys     normalizer.KeyGenerator
	merger   record.Merger
	resolver denormalizer.Resolver
	oracle   selection.SupertypesOracle
	logger   *slog.Logger
	bus      *eventbus.Bus
}

type Option func(*config)

func WithKeyGenerator(g normalizer.KeyGenerator) Option {
	return func(c *config) { c.keys = g }
}

// WithMerger sets the merger used for the base cache and for optimistic
// layers.
func WithMerger(m record.Merger) Option {
	return func(c *config) { c.merger = m }
}

func WithResolver(r denormalizer.Resolver) Option {
	return func(c *config) { c.resolver = r }
}

// WithSchema supplies the supertypes of each type, so that fragments on
// interfaces and unions apply. *schema.Schema implements it.
func WithSchema(oracle selection.SupertypesOracle) Option {
	return func(c *config) { c.oracle = oracle }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithBus publishes change and tracing events on bus instead of a private
// one.
func WithBus(bus *eventbus.Bus) Option {
	return func(c *config) { c.bus = bus }
}
