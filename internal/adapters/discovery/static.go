package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/eleven-am/peermesh/internal/domain"
)

// StaticResolver answers from a fixed peer table, typically loaded from
// configuration.
type StaticResolver struct {
	mu    sync.RWMutex
	peers map[string]string
}

func NewStaticResolver(peers []domain.StaticPeer) *StaticResolver {
	s := &StaticResolver{peers: make(map[string]string, len(peers))}
	for _, peer := range peers {
		s.peers[peer.ID] = peer.Address
	}
	return s
}

// Set adds or replaces one entry. An empty address removes it.
func (s *StaticResolver) Set(peerID, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if address == "" {
		delete(s.peers, peerID)
		return
	}
	s.peers[peerID] = address
}

func (s *StaticResolver) Resolve(_ context.Context, peerID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	address, ok := s.peers[peerID]
	if !ok {
		return "", fmt.Errorf("static: peer %s: %w", peerID, domain.ErrNotFound)
	}
	return address, nil
}

func (s *StaticResolver) Name() string {
	return "static"
}
