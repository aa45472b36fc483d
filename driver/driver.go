package driver

// Event is a bit mask of endpoint event kinds delivered to a Handler.
type Event uint32

// Endpoint event kinds. A single notification may carry both bits.
const (
	// EventReceive indicates the stack has data ready to pull with Receive.
	EventReceive Event = 1 << 0

	// EventTransmit indicates the chunk handed to Transmit has completed.
	EventTransmit Event = 1 << 1
)

// Has reports whether ev contains all bits of mask.
func (ev Event) Has(mask Event) bool { return ev&mask == mask }

// String returns a human-readable event description.
func (ev Event) String() string {
	switch {
	case ev.Has(EventReceive | EventTransmit):
		return "receive|transmit"
	case ev.Has(EventReceive):
		return "receive"
	case ev.Has(EventTransmit):
		return "transmit"
	default:
		return "none"
	}
}

// Handler receives endpoint event notifications from a driver.
//
// The driver invokes the handler from its event context; handlers must
// not block and must not call back into blocking port operations.
type Handler func(Event)

// Driver is the interface the buffered serial port consumes to talk to
// a USB CDC-ACM device stack.
//
// Implementations provide the transport and event delivery; the port
// layer provides all buffering and flow control on top.
type Driver interface {
	// Enable initializes the channel and registers h for the events in
	// mask. Returns pkg.ErrAlreadyEnabled if the channel is already up.
	Enable(h Handler, mask Event) error

	// Notify replaces the registered handler and mask on an already
	// enabled channel. Returns pkg.ErrNotEnabled otherwise.
	Notify(h Handler, mask Event) error

	// Disable tears the channel down. The handler is unregistered and
	// no further events are delivered after Disable returns.
	Disable() error

	// Transmit hands one chunk to the stack. It is asynchronous:
	// completion is signaled later via EventTransmit. The chunk memory
	// must remain valid until completion. Returns pkg.ErrBusy if a
	// chunk is already in flight.
	Transmit(p []byte) error

	// Receive pulls up to len(p) bytes that the stack has already
	// received. It never blocks and returns the number of bytes copied;
	// zero means end of data for now. Call only from the event handler.
	Receive(p []byte) int

	// Done reports whether no transmit chunk is in flight.
	Done() bool

	// Ready reports whether the channel is enabled and configured by
	// the host.
	Ready() bool

	// Connected reports whether a host is attached and has opened the
	// port.
	Connected() bool

	// LineCoding returns the host-negotiated serial parameters.
	LineCoding() LineCoding

	// LineState returns the host-controlled line state bits.
	LineState() LineState
}
