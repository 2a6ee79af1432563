package ports

import (
	"context"
)

// Resolver maps a peer identifier to a dialable network address.
type Resolver interface {
	Resolve(ctx context.Context, peerID string) (string, error)
	Name() string
}

// Advertiser publishes the local endpoint so resolvers on other hosts can
// find it.
type Advertiser interface {
	Advertise(info ServiceInfo) error
	Stop() error
}

type ServiceInfo struct {
	ID       string
	Address  string
	Port     int
	Metadata map[string]string
}
