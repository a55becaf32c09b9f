package resource

// StoreBuilderOption is a functional option for configuring a Store via NewStore.
type StoreBuilderOption func(*storeImpl)

// WithIDAllocator sets the allocator the store draws ids from.
// Defaults to a fresh allocator starting at 1.
//
// Parameters:
//   - ids: the allocator
//
// Returns:
//   - StoreBuilderOption: option function to apply
func WithIDAllocator(ids IDAllocator) StoreBuilderOption {
	return func(s *storeImpl) {
		s.ids = ids
	}
}
