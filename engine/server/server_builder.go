package server

import "time"

// ServerBuilderOption is a functional option for configuring a Server.
type ServerBuilderOption func(*serverImpl)

// WithAddress sets the host:port Serve listens on.
//
// Parameters:
//   - address: the listen address
//
// Returns:
//   - ServerBuilderOption: a function that sets the server's address
func WithAddress(address string) ServerBuilderOption {
	return func(s *serverImpl) {
		if address != "" {
			s.address = address
		}
	}
}

// WithShutdownGrace bounds how long Serve waits for in-flight requests after cancellation.
//
// Parameters:
//   - d: the grace period
//
// Returns:
//   - ServerBuilderOption: a function that sets the server's grace period
func WithShutdownGrace(d time.Duration) ServerBuilderOption {
	return func(s *serverImpl) {
		s.grace = d
	}
}

// WithInitTimeout bounds the wait for connection_init on new WebSocket connections.
func WithInitTimeout(d time.Duration) ServerBuilderOption {
	return func(s *serverImpl) {
		s.initTimeout = d
	}
}
