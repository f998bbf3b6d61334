package pool

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/Consiliency/treesitter-chunker-sub001/pkg/types"
)

const (
	// DefaultMaxPoolSize bounds how many released resources are retained
	// per type. Outstanding resources are never bounded.
	DefaultMaxPoolSize = 8

	parserPrefix = "parser:"
)

// ParserResourceType returns the pool resource type for a language's
// parser, e.g. "parser:python".
func ParserResourceType(language string) string {
	return parserPrefix + language
}

// FactoryFunc constructs one resource instance for a registered type.
type FactoryFunc func() (any, error)

// Resettable is implemented by resources that must clear working state
// before returning to the free list.
type Resettable interface {
	Reset()
}

// TypeStats reports one resource type's lifetime counters. InUse is the
// explicit difference between acquisitions and releases.
type TypeStats struct {
	Pooled   int
	InUse    int64
	Acquired int64
	Released int64
	Created  int64
}

// counters tracks one resource type's lifetime totals
type counters struct {
	acquired int64
	released int64
	created  int64
}

// Config holds object pool configuration.
type Config struct {
	// MaxPoolSize bounds retained resources per type. Zero selects
	// DefaultMaxPoolSize.
	MaxPoolSize int

	// Logger is the structured logger. When nil, a discard logger is used.
	Logger *slog.Logger
}

// logger returns the configured logger, or a discard logger if nil.
func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Pool is a type-keyed pool of expensive resources such as parsers.
// Acquire never blocks and never fails from exhaustion: when a type's free
// list is empty a new instance is constructed. Only the resting size of
// each free list is bounded, at release time. All state sits behind one
// coarse mutex; construction happens outside it.
type Pool struct {
	mu            sync.Mutex
	max           int
	free          map[string][]any
	counts        map[string]*counters
	factories     map[string]FactoryFunc
	parserFactory types.ParserFactory
	closed        bool
	logger        *slog.Logger
}

// New creates an object pool from the given configuration.
func New(cfg Config) *Pool {
	max := cfg.MaxPoolSize
	if max <= 0 {
		max = DefaultMaxPoolSize
	}
	return &Pool{
		max:       max,
		free:      make(map[string][]any),
		counts:    make(map[string]*counters),
		factories: make(map[string]FactoryFunc),
		logger:    cfg.logger(),
	}
}

// RegisterFactory installs the constructor for one resource type,
// replacing any prior registration.
func (p *Pool) RegisterFactory(resourceType string, factory FactoryFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factories[resourceType] = factory
}

// RegisterParserFactory installs the factory serving every
// "parser:<language>" resource type. An exact RegisterFactory entry for a
// specific parser type takes precedence.
func (p *Pool) RegisterParserFactory(factory types.ParserFactory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parserFactory = factory
}

// Acquire returns a resource of the given type, reusing a pooled instance
// when one is free and constructing a new one otherwise. It never waits.
func (p *Pool) Acquire(resourceType string) (any, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, types.ErrPoolClosed
	}

	if list := p.free[resourceType]; len(list) > 0 {
		resource := list[len(list)-1]
		p.free[resourceType] = list[:len(list)-1]
		p.countersFor(resourceType).acquired++
		p.mu.Unlock()
		return resource, nil
	}

	factory := p.factoryLocked(resourceType)
	p.mu.Unlock()

	if factory == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownResourceType, resourceType)
	}

	// Construction can be slow; keep it outside the pool lock.
	resource, err := factory()
	if err != nil {
		return nil, fmt.Errorf("constructing %s: %w", resourceType, err)
	}

	p.mu.Lock()
	c := p.countersFor(resourceType)
	c.created++
	c.acquired++
	p.mu.Unlock()

	p.logger.Debug("pool resource created", "resource_type", resourceType)
	return resource, nil
}

// Release returns a resource to its type's free list. Resettable resources
// are reset first. When the free list is full, or the pool is closed, the
// resource is dropped and closed if it is an io.Closer.
func (p *Pool) Release(resourceType string, resource any) {
	if resource == nil {
		return
	}

	if r, ok := resource.(Resettable); ok {
		r.Reset()
	}

	p.mu.Lock()
	p.countersFor(resourceType).released++
	if !p.closed && len(p.free[resourceType]) < p.max {
		p.free[resourceType] = append(p.free[resourceType], resource)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.closeResource(resourceType, resource)
}

// WarmUp pre-constructs resources for a type until its free list holds
// min(n, MaxPoolSize) instances, and returns how many it added.
func (p *Pool) WarmUp(resourceType string, n int) (int, error) {
	target := n
	if target > p.max {
		target = p.max
	}

	added := 0
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return added, types.ErrPoolClosed
		}
		if len(p.free[resourceType]) >= target {
			p.mu.Unlock()
			return added, nil
		}
		factory := p.factoryLocked(resourceType)
		p.mu.Unlock()

		if factory == nil {
			return added, fmt.Errorf("%w: %s", types.ErrUnknownResourceType, resourceType)
		}

		resource, err := factory()
		if err != nil {
			return added, fmt.Errorf("warming up %s: %w", resourceType, err)
		}

		p.mu.Lock()
		if p.closed || len(p.free[resourceType]) >= p.max {
			p.mu.Unlock()
			p.closeResource(resourceType, resource)
			return added, nil
		}
		p.free[resourceType] = append(p.free[resourceType], resource)
		p.countersFor(resourceType).created++
		p.mu.Unlock()
		added++
	}
}

// Stats reports per-type counters for every resource type the pool has
// seen.
func (p *Pool) Stats() map[string]TypeStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]TypeStats, len(p.counts))
	for resourceType, c := range p.counts {
		out[resourceType] = TypeStats{
			Pooled:   len(p.free[resourceType]),
			InUse:    c.acquired - c.released,
			Acquired: c.acquired,
			Released: c.released,
			Created:  c.created,
		}
	}
	return out
}

// Close drains every free list, closing pooled io.Closers, and marks the
// pool unusable. Outstanding resources are unaffected; releasing them
// afterward drops them.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	drained := p.free
	p.free = make(map[string][]any)
	p.mu.Unlock()

	var firstErr error
	for resourceType, list := range drained {
		for _, resource := range list {
			if closer, ok := resource.(io.Closer); ok {
				if err := closer.Close(); err != nil && firstErr == nil {
					firstErr = fmt.Errorf("closing pooled %s: %w", resourceType, err)
				}
			}
		}
	}
	return firstErr
}

// factoryLocked resolves the constructor for a resource type. The caller
// must hold the pool mutex.
func (p *Pool) factoryLocked(resourceType string) FactoryFunc {
	if factory, ok := p.factories[resourceType]; ok {
		return factory
	}
	if p.parserFactory != nil && strings.HasPrefix(resourceType, parserPrefix) {
		language := strings.TrimPrefix(resourceType, parserPrefix)
		factory := p.parserFactory
		return func() (any, error) {
			return factory.NewParser(language)
		}
	}
	return nil
}

// countersFor returns the counters for a type, creating them on first use.
// The caller must hold the pool mutex.
func (p *Pool) countersFor(resourceType string) *counters {
	c, ok := p.counts[resourceType]
	if !ok {
		c = &counters{}
		p.counts[resourceType] = c
	}
	return c
}

// closeResource closes a dropped resource when it is an io.Closer.
func (p *Pool) closeResource(resourceType string, resource any) {
	closer, ok := resource.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		p.logger.Warn("closing dropped pool resource failed",
			"resource_type", resourceType,
			"error", err)
	}
}
