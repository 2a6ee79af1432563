package discovery

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/multierr"

	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/ports"
)

// CompositeResolver asks each resolver in order and returns the first
// address found.
type CompositeResolver struct {
	resolvers []ports.Resolver
}

func NewCompositeResolver(resolvers ...ports.Resolver) *CompositeResolver {
	return &CompositeResolver{resolvers: resolvers}
}

func (c *CompositeResolver) Resolve(ctx context.Context, peerID string) (string, error) {
	var errs error
	for _, resolver := range c.resolvers {
		address, err := resolver.Resolve(ctx, peerID)
		if err == nil {
			return address, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		errs = multierr.Append(errs, err)
	}
	if errs == nil {
		return "", fmt.Errorf("composite: peer %s: %w", peerID, domain.ErrNotFound)
	}
	return "", errs
}

func (c *CompositeResolver) Name() string {
	return "composite"
}

// PassthroughResolver accepts identifiers that already are host:port
// addresses.
type PassthroughResolver struct{}

func (PassthroughResolver) Resolve(_ context.Context, peerID string) (string, error) {
	if _, _, err := net.SplitHostPort(peerID); err != nil {
		return "", fmt.Errorf("passthrough: peer %s: %w", peerID, domain.ErrNotFound)
	}
	return peerID, nil
}

func (PassthroughResolver) Name() string {
	return "passthrough"
}

type compositeAdvertiser []ports.Advertiser

func (c compositeAdvertiser) Advertise(info ports.ServiceInfo) error {
	var errs error
	for _, advertiser := range c {
		errs = multierr.Append(errs, advertiser.Advertise(info))
	}
	return errs
}

func (c compositeAdvertiser) Stop() error {
	var errs error
	for _, advertiser := range c {
		errs = multierr.Append(errs, advertiser.Stop())
	}
	return errs
}
