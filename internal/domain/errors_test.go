package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEndpointErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("listen tcp: address in use")
	err := NewEndpointError(ErrEndpointCreation, "open", cause)

	if !IsEndpointCreation(err) {
		t.Error("expected endpoint creation error to match ErrEndpointCreation")
	}
	if IsEndpointClosed(err) {
		t.Error("creation error must not match ErrEndpointClosed")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through errors.Is")
	}
	if !strings.Contains(err.Error(), "address in use") {
		t.Errorf("expected message to carry cause, got %q", err.Error())
	}
}

func TestEndpointErrorWithoutCause(t *testing.T) {
	err := NewEndpointError(ErrEndpointClosed, "join", nil)

	if !IsEndpointClosed(err) {
		t.Error("expected closed error to match ErrEndpointClosed")
	}
	if err.Error() != "endpoint join: endpoint closed" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestChannelErrorIsScoped(t *testing.T) {
	err := fmt.Errorf("dial: %w", NewChannelError("peer-b", "chan-1", ErrPeerUnavailable))

	if !IsChannelError(err) {
		t.Error("expected wrapped channel error to be detected")
	}
	if !errors.Is(err, ErrChannel) {
		t.Error("expected ErrChannel sentinel")
	}
	if !errors.Is(err, ErrPeerUnavailable) {
		t.Error("expected cause sentinel")
	}

	var channelErr *ChannelError
	if !errors.As(err, &channelErr) || channelErr.PeerID != "peer-b" {
		t.Errorf("expected peer-b channel error, got %#v", channelErr)
	}
}

func TestConfigErrorIsInvalidConfig(t *testing.T) {
	err := NewConfigError("mesh.teardown_grace", ErrInvalidInput)

	if !IsInvalidConfig(err) {
		t.Error("config errors must match ErrInvalidConfig")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("config errors must expose their cause")
	}
	if err.Error() != "config field mesh.teardown_grace: invalid input" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
