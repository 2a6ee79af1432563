package registry

import (
	"log/slog"
	"sync"

	"github.com/eleven-am/peermesh/internal/domain"
	"github.com/eleven-am/peermesh/internal/ports"
)

// Record is what the registry knows about one peer. A nil Channel means the
// peer is known but not currently connected.
type Record struct {
	PeerID  string
	Channel ports.Channel
	Profile *domain.PeerProfile
}

func (r Record) Connected() bool {
	return r.Channel != nil
}

// Update carries the fields to merge into a record. Nil fields are left
// untouched on the existing record.
type Update struct {
	Profile *domain.PeerProfile
	Channel ports.Channel
}

// Registry is the ordered, authoritative peer table. Records are never
// deleted on disconnect; only Reset drops them.
type Registry struct {
	mu      sync.RWMutex
	records []*Record
	index   map[string]int
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		index:  make(map[string]int),
		logger: logger.With("component", "registry"),
	}
}

// Upsert merges u into the record for peerID, creating it when absent. It
// reports false when nothing changed: the profile is equal by value and the
// channel has the same connection ID.
func (r *Registry) Upsert(peerID string, u Update) bool {
	if peerID == "" {
		r.logger.Error("connection could not be registered", "error", domain.ErrMissingIdentifier)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pos, exists := r.index[peerID]
	if !exists {
		r.index[peerID] = len(r.records)
		r.records = append(r.records, &Record{
			PeerID:  peerID,
			Channel: u.Channel,
			Profile: u.Profile.Clone(),
		})
		r.logger.Debug("peer registered", "peer_id", peerID, "connected", u.Channel != nil)
		return true
	}

	record := r.records[pos]
	changed := false
	if u.Profile != nil && !record.Profile.Equal(u.Profile) {
		record.Profile = u.Profile.Clone()
		changed = true
	}
	if u.Channel != nil && !sameChannel(record.Channel, u.Channel) {
		record.Channel = u.Channel
		changed = true
	}

	if changed {
		r.logger.Debug("peer updated", "peer_id", peerID, "channel_id", channelID(record.Channel))
	}
	return changed
}

// ClearChannel marks the peer disconnected while keeping its record and
// profile. It reports false when the peer is unknown.
func (r *Registry) ClearChannel(peerID string) bool {
	if peerID == "" {
		r.logger.Error("connection could not be cleared", "error", domain.ErrMissingIdentifier)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pos, exists := r.index[peerID]
	if !exists {
		return false
	}

	r.records[pos].Channel = nil
	r.logger.Debug("peer channel cleared", "peer_id", peerID)
	return true
}

// ClearAll drops every channel and returns how many records were connected.
func (r *Registry) ClearAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cleared := 0
	for _, record := range r.records {
		if record.Channel != nil {
			record.Channel = nil
			cleared++
		}
	}
	return cleared
}

// IndexOf returns the insertion position of peerID, or -1.
func (r *Registry) IndexOf(peerID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if pos, exists := r.index[peerID]; exists {
		return pos
	}
	return -1
}

func (r *Registry) Get(peerID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, exists := r.index[peerID]
	if !exists {
		return Record{}, false
	}
	return *r.records[pos], true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Snapshot projects the registry into MeshView connections.
func (r *Registry) Snapshot() []domain.PeerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]domain.PeerStatus, 0, len(r.records))
	for _, record := range r.records {
		statuses = append(statuses, domain.PeerStatus{
			PeerID:      record.PeerID,
			Profile:     record.Profile.Clone(),
			IsConnected: record.Channel != nil,
		})
	}
	return statuses
}

// OpenChannels lists the current channel of every connected peer, in
// registry order.
func (r *Registry) OpenChannels() []ports.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]ports.Channel, 0, len(r.records))
	for _, record := range r.records {
		if record.Channel != nil {
			channels = append(channels, record.Channel)
		}
	}
	return channels
}

// Disconnected lists peers that are known but have no channel.
func (r *Registry) Disconnected() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var peers []string
	for _, record := range r.records {
		if record.Channel == nil {
			peers = append(peers, record.PeerID)
		}
	}
	return peers
}

// Seed restores peers from a previous session as channel-less records.
func (r *Registry) Seed(entries []domain.SessionEntry) int {
	seeded := 0
	for _, entry := range entries {
		if entry.PeerID == "" {
			continue
		}
		if r.Upsert(entry.PeerID, Update{Profile: entry.Profile}) {
			seeded++
		}
	}
	r.logger.Debug("registry seeded from session", "entries", len(entries), "changed", seeded)
	return seeded
}

// Reset forgets every record.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = nil
	r.index = make(map[string]int)
	r.logger.Debug("registry reset")
}

func sameChannel(a, b ports.Channel) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID() == b.ID()
}

func channelID(ch ports.Channel) string {
	if ch == nil {
		return ""
	}
	return ch.ID()
}
