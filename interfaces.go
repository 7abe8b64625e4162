package dogapi

import "context"

// Connector opens the scoped connection a single request is sent over.
// *ConnectionFactory is the production implementation; mock.Connector is the
// test double.
type Connector interface {
	Connect(ctx context.Context, proxy ProxyConfig) (*Connection, error)
}
