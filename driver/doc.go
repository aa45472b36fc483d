// Package driver defines the contract between the buffered serial port
// and the underlying USB CDC-ACM device stack.
//
// The port layer does not manage descriptors, endpoint configuration, or
// line-state negotiation; all of that lives behind the [Driver]
// interface. A driver exposes four operations (enable, disable,
// transmit-chunk, receive-chunk) and delivers two event notifications
// (data received, chunk transmitted) to a registered [Handler].
//
// # Event Delivery
//
// A driver owns a single event stream, typically one goroutine standing
// in for the endpoint interrupt handler. Both event kinds may arrive
// combined in one Handler invocation:
//
//	h(driver.EventReceive | driver.EventTransmit)
//
// Receive is only meaningful while the handler is running; it performs a
// non-blocking pull from the packet buffer the stack has already
// received into.
//
// # Transmit Pipeline
//
// Transmit hands exactly one chunk to the stack and returns without
// waiting; completion is signaled later with EventTransmit. At most one
// chunk may be in flight at a time, which callers check with Done.
//
// # Line State
//
// LineCoding and LineState report the host-negotiated serial parameters
// (baud rate, framing) and control lines (DTR, RTS). The port layer
// treats these as read-only.
package driver
