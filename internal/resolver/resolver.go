// Package resolver defines the Resolver interface, the registry that builds
// resolvers from configuration, and the built-in resolver implementations.
package resolver

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/data-collector/internal/models"
)

var (
	// ErrEmptyID is returned when registering a constructor without an identifier.
	ErrEmptyID = errors.New("resolver id must not be empty")

	// ErrDuplicateID is returned when an identifier is registered twice.
	ErrDuplicateID = errors.New("resolver id already registered")

	// ErrUnknownResolver is returned by Create for identifiers nobody registered.
	ErrUnknownResolver = errors.New("resolver is not registered")

	// ErrRegistryFrozen is returned when registering after the first Create.
	ErrRegistryFrozen = errors.New("resolver registry is frozen")

	// ErrInvalidConfig wraps problems found while decoding a resolver's config.
	ErrInvalidConfig = errors.New("invalid resolver config")

	// ErrMissingDependency signals an environment problem such as an external
	// tool that is not installed.
	ErrMissingDependency = errors.New("missing external dependency")
)

// Resolver is a probe that performs one measurement against a server per Run.
//
// Implementations must not keep state between runs. Anything a resolver needs
// to know about earlier runs (e.g. when it last ran) comes from previous,
// which is the last Result stored for this server and resolver, or nil.
type Resolver interface {
	// ID returns the registry identifier, which is also the metric prefix.
	ID() string

	// Run performs one measurement. It returns a *models.Result with fresh
	// data, a models.SkippedRun when it deliberately did nothing, or an error
	// on unrecoverable failure. Expected transient conditions such as an
	// unreachable host should be encoded as degraded metrics instead.
	Run(ctx context.Context, server Server, previous *models.Result) (models.Outcome, error)
}

// Server is a probed host together with its resolvers, in attachment order.
type Server struct {
	Hostname  string
	Resolvers []Resolver
}

// Decoder decodes a resolver's raw configuration into a typed struct.
type Decoder interface {
	Decode(v any) error
}

// Settings is what a Constructor receives when a resolver is created.
type Settings struct {
	// Config holds the resolver's sub-document. It is never nil.
	Config Decoder

	// Logger is named after the resolver id.
	Logger *zap.Logger
}

// Constructor builds a resolver from its settings.
type Constructor func(settings Settings) (Resolver, error)

type emptyConfig struct{}

func (emptyConfig) Decode(any) error { return nil }
