package domain

// PeerProfile is the self-description a peer attaches to its introduction.
// The wire name of IsOriginator is "isMain".
type PeerProfile struct {
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	IsOriginator bool   `json:"isMain" yaml:"is_originator"`
}

// Clone returns an independent copy; nil stays nil.
func (p *PeerProfile) Clone() *PeerProfile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Equal compares profiles by value. Two nil profiles are equal.
func (p *PeerProfile) Equal(other *PeerProfile) bool {
	if p == nil || other == nil {
		return p == nil && other == nil
	}
	return *p == *other
}

// PeerStatus is one entry of a MeshView.
type PeerStatus struct {
	PeerID      string       `json:"peerId"`
	Profile     *PeerProfile `json:"profile,omitempty"`
	IsConnected bool         `json:"isConnected"`
}

// MeshView is the derived, read-only picture of the mesh handed to
// subscribers and callers.
type MeshView struct {
	SelfID      string       `json:"selfId,omitempty"`
	Connections []PeerStatus `json:"connections"`
}

func (v MeshView) Peer(peerID string) (PeerStatus, bool) {
	for _, status := range v.Connections {
		if status.PeerID == peerID {
			return status, true
		}
	}
	return PeerStatus{}, false
}

func (v MeshView) ConnectedCount() int {
	count := 0
	for _, status := range v.Connections {
		if status.IsConnected {
			count++
		}
	}
	return count
}

// Session trims the view down to what is persisted between processes.
func (v MeshView) Session() []SessionEntry {
	entries := make([]SessionEntry, 0, len(v.Connections))
	for _, status := range v.Connections {
		entries = append(entries, SessionEntry{
			PeerID:  status.PeerID,
			Profile: status.Profile.Clone(),
		})
	}
	return entries
}

// SessionEntry is a persisted peer: identifier and last known profile only.
type SessionEntry struct {
	PeerID  string       `json:"peerId"`
	Profile *PeerProfile `json:"profile,omitempty"`
}
