// Package protocol defines the two messages peers exchange over every
// channel and their JSON encoding.
package protocol

import "github.com/eleven-am/peermesh/internal/domain"

type MessageType string

const (
	TypeIntroduction   MessageType = "introduction"
	TypeNewParticipant MessageType = "new-participant"

	// legacyNewParticipant is the tag older peers put on the wire.
	legacyNewParticipant MessageType = "new participant"
)

// Message is either *Introduction or *NewParticipant.
type Message interface {
	Type() MessageType
	sealed()
}

// Introduction announces the sender's identifier and profile. It is the
// first message on every channel and is re-sent when the profile changes.
type Introduction struct {
	ID   string
	User *domain.PeerProfile
}

// NewParticipant tells an existing member about a peer it should dial.
type NewParticipant struct {
	ID string
}

func (*Introduction) Type() MessageType   { return TypeIntroduction }
func (*NewParticipant) Type() MessageType { return TypeNewParticipant }

func (*Introduction) sealed()   {}
func (*NewParticipant) sealed() {}
