package pkg

import "errors"

// Port and driver lifecycle errors.
//
// These are returned only from control-path operations (Open, Close,
// driver Enable/Disable/Transmit). The byte-stream data path reports
// degraded outcomes via return counts, never via error values.
var (
	// ErrNotReady indicates the channel is not enabled and configured.
	ErrNotReady = errors.New("channel not ready")

	// ErrNotEnabled indicates the driver has not been enabled.
	ErrNotEnabled = errors.New("driver not enabled")

	// ErrAlreadyEnabled indicates the driver is already enabled.
	ErrAlreadyEnabled = errors.New("driver already enabled")

	// ErrBusy indicates a transmit chunk is already in flight.
	ErrBusy = errors.New("transmit in flight")

	// ErrClosed indicates the port or driver has been closed.
	ErrClosed = errors.New("closed")

	// ErrInvalidConfig indicates an invalid port configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProtocol indicates a framing or protocol error on the transport.
	ErrProtocol = errors.New("protocol error")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")
)
