package protocol

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/eleven-am/peermesh/internal/domain"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedMessage   = errors.New("malformed message")
)

type envelope struct {
	Type MessageType         `json:"type"`
	ID   string              `json:"id"`
	User *domain.PeerProfile `json:"user,omitempty"`
}

func Encode(msg Message) ([]byte, error) {
	var env envelope
	switch m := msg.(type) {
	case *Introduction:
		env = envelope{Type: TypeIntroduction, ID: m.ID, User: m.User}
	case *NewParticipant:
		if m.ID == "" {
			return nil, fmt.Errorf("%w: new-participant without id", ErrMalformedMessage)
		}
		env = envelope{Type: TypeNewParticipant, ID: m.ID}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, msg)
	}
	return json.Marshal(env)
}

// Decode parses one wire message. Unrecognized type tags return an error
// wrapping ErrUnknownMessageType so callers can choose to ignore them.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case TypeIntroduction:
		return &Introduction{ID: env.ID, User: env.User}, nil
	case TypeNewParticipant, legacyNewParticipant:
		if env.ID == "" {
			return nil, fmt.Errorf("%w: new-participant without id", ErrMalformedMessage)
		}
		return &NewParticipant{ID: env.ID}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}
