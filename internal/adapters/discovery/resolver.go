package discovery

import (
	"log/slog"

	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/ports"
)

// New assembles the resolver chain and advertiser described by the
// discovery configs. Passthrough always comes last, so a peer identifier
// that is itself an address stays dialable. The advertiser is nil when no
// mDNS config asks to advertise.
func New(configs []domain.DiscoveryConfig, logger *slog.Logger) (ports.Resolver, ports.Advertiser) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		resolvers   []ports.Resolver
		advertisers compositeAdvertiser
	)
	for _, config := range configs {
		switch config.Type {
		case domain.DiscoveryStatic:
			resolvers = append(resolvers, NewStaticResolver(config.Static))
		case domain.DiscoveryMDNS:
			mdnsConfig := config.MDNS
			if mdnsConfig == nil {
				mdnsConfig = domain.DefaultMDNSConfig()
			}
			resolvers = append(resolvers, NewMDNSResolver(*mdnsConfig, logger))
			if mdnsConfig.Advertise {
				advertisers = append(advertisers, NewMDNSAdvertiser(*mdnsConfig, logger))
			}
		default:
			logger.Warn("ignoring unknown discovery type", "type", config.Type)
		}
	}
	resolvers = append(resolvers, PassthroughResolver{})

	var advertiser ports.Advertiser
	switch len(advertisers) {
	case 0:
	case 1:
		advertiser = advertisers[0]
	default:
		advertiser = advertisers
	}

	if len(resolvers) == 1 {
		return resolvers[0], advertiser
	}
	return NewCompositeResolver(resolvers...), advertiser
}
