package cache

import (
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/resource"
)

// CacheBuilderOption is a functional option for configuring a Cache.
type CacheBuilderOption func(*cacheImpl)

// WithSampler sets the sampler descriptor used for every texture.
//
// Parameters:
//   - desc: the sampler descriptor
//
// Returns:
//   - CacheBuilderOption: the option
func WithSampler(desc gpu.SamplerDescriptor) CacheBuilderOption {
	return func(c *cacheImpl) {
		c.sampler = desc
	}
}

// WithMaterializeHook registers a function called after each resource is made resident.
// It runs on the caller's goroutine.
func WithMaterializeHook(fn func(kind resource.Kind, id resource.ID)) CacheBuilderOption {
	return func(c *cacheImpl) {
		c.hook = fn
	}
}
