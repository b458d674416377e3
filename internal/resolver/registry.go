package resolver

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry maps resolver identifiers to constructors. It is filled once at
// startup and becomes read-only with the first Create (or an explicit Freeze),
// so lookups never race with registration.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	frozen       bool
	logger       *zap.Logger
}

// NewRegistry creates an empty registry. Resolvers it creates log through
// logger.Named("resolver").Named(id).
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		logger:       logger.Named("resolver"),
	}
}

// Register adds a constructor under id. It fails for an empty or already
// registered id, or when the registry is frozen.
func (r *Registry) Register(id string, c Constructor) error {
	if id == "" {
		return ErrEmptyID
	}
	if c == nil {
		return fmt.Errorf("resolver %q: nil constructor", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registering %q: %w", id, ErrRegistryFrozen)
	}
	if _, exists := r.constructors[id]; exists {
		return fmt.Errorf("registering %q: %w", id, ErrDuplicateID)
	}
	r.constructors[id] = c
	r.logger.Debug("Registered resolver", zap.String("resolver", id))
	return nil
}

// Freeze stops further registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Create builds a resolver registered under id, passing it cfg. A nil cfg is
// treated as an empty configuration. The first call freezes the registry.
func (r *Registry) Create(id string, cfg Decoder) (Resolver, error) {
	r.mu.Lock()
	r.frozen = true
	c, ok := r.constructors[id]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("creating %q: %w", id, ErrUnknownResolver)
	}
	if cfg == nil {
		cfg = emptyConfig{}
	}

	res, err := c(Settings{
		Config: cfg,
		Logger: r.logger.Named(id),
	})
	if err != nil {
		return nil, fmt.Errorf("creating %q: %w", id, err)
	}
	if res.ID() != id {
		return nil, fmt.Errorf("creating %q: constructor returned resolver %q", id, res.ID())
	}
	return res, nil
}

// IDs returns all registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.constructors))
	for id := range r.constructors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
