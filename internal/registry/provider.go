package registry

import (
	"context"
	"sync"
)

// Provider builds a Registry on first use and hands the same one to every
// caller. Build errors are sticky.
type Provider struct {
	build func(ctx context.Context) (*Registry, error)

	start sync.Once
	done  chan struct{}
	reg   *Registry
	err   error
}

// NewProvider returns a Provider that will call build at most once.
func NewProvider(build func(ctx context.Context) (*Registry, error)) *Provider {
	return &Provider{build: build, done: make(chan struct{})}
}

// Get returns the registry, building it if needed. ctx only bounds the wait;
// the build itself is not tied to the first caller's context.
func (p *Provider) Get(ctx context.Context) (*Registry, error) {
	p.start.Do(func() {
		go func() {
			defer close(p.done)
			p.reg, p.err = p.build(context.Background())
		}()
	})

	select {
	case <-p.done:
		return p.reg, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
