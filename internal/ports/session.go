package ports

import "github.com/eleven-am/peermesh/internal/domain"

// SessionStore persists what a later process needs to rejoin: the last
// assigned local identifier and the trimmed peer list.
type SessionStore interface {
	LoadPeerID() (string, error)
	SavePeerID(peerID string) error
	LoadConnections() ([]domain.SessionEntry, error)
	SaveConnections(entries []domain.SessionEntry) error
	Close() error
}
