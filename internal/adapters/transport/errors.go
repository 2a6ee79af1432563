package transport

import (
	"errors"
	"fmt"

	"github.com/eleven-am/peermesh/internal/domain"
)

var (
	ErrChannelClosed  = errors.New("channel closed")
	ErrChannelOpening = errors.New("channel not open yet")
)

func newChannelUnavailable(peerID, channelID string, cause error) error {
	return domain.NewChannelError(peerID, channelID, fmt.Errorf("%w: %v", domain.ErrPeerUnavailable, cause))
}

func newEndpointCreationError(cause error) error {
	return domain.NewEndpointError(domain.ErrEndpointCreation, "listen", cause)
}
