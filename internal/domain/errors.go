package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEndpointCreation     = errors.New("endpoint creation failed")
	ErrEndpointClosed       = errors.New("endpoint closed")
	ErrEndpointDisconnected = errors.New("endpoint disconnected")
	ErrChannel              = errors.New("channel error")
	ErrMissingIdentifier    = errors.New("missing peer identifier")
	ErrPeerUnavailable      = errors.New("peer unavailable")
	ErrNotReady             = errors.New("mesh not ready")
	ErrCoordinatorClosed    = errors.New("coordinator closed")
	ErrNotFound             = errors.New("resource not found")
	ErrInvalidConfig        = errors.New("invalid configuration")
	ErrInvalidInput         = errors.New("invalid input")
	ErrTimeout              = errors.New("operation timeout")
)

// EndpointError reports a failure of the local network endpoint. Kind is one
// of ErrEndpointCreation, ErrEndpointClosed or ErrEndpointDisconnected.
type EndpointError struct {
	Kind error
	Op   string
	Err  error
}

func (e *EndpointError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("endpoint %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("endpoint %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *EndpointError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewEndpointError(kind error, op string, err error) *EndpointError {
	return &EndpointError{
		Kind: kind,
		Op:   op,
		Err:  err,
	}
}

// ChannelError is scoped to one peer's channel and never aborts the mesh.
type ChannelError struct {
	PeerID    string
	ChannelID string
	Err       error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s to peer %s: %v", e.ChannelID, e.PeerID, e.Err)
}

func (e *ChannelError) Unwrap() []error {
	return []error{ErrChannel, e.Err}
}

func NewChannelError(peerID, channelID string, err error) *ChannelError {
	return &ChannelError{
		PeerID:    peerID,
		ChannelID: channelID,
		Err:       err,
	}
}

type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config field %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrInvalidConfig, e.Err}
}

func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{
		Field: field,
		Err:   err,
	}
}

func IsEndpointCreation(err error) bool {
	return errors.Is(err, ErrEndpointCreation)
}

func IsEndpointClosed(err error) bool {
	return errors.Is(err, ErrEndpointClosed)
}

func IsChannelError(err error) bool {
	var channelErr *ChannelError
	return errors.As(err, &channelErr)
}

func IsMissingIdentifier(err error) bool {
	return errors.Is(err, ErrMissingIdentifier)
}

func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
