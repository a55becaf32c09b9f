package project

import "time"

// ProjectBuilderOption is a functional option for configuring a Project.
type ProjectBuilderOption func(*projectImpl)

// WithClock sets the clock used to stamp the manifest's creation time.
//
// Parameters:
//   - now: the clock
//
// Returns:
//   - ProjectBuilderOption: a function that sets the project's clock
func WithClock(now func() time.Time) ProjectBuilderOption {
	return func(p *projectImpl) {
		if now != nil {
			p.now = now
		}
	}
}
