// Package serial implements a buffered, flow-controlled serial port on
// top of a USB CDC-ACM device stack.
//
// The stack itself is an external collaborator behind the
// [github.com/ardnew/usbserial/driver.Driver] interface; this package
// provides the byte-stream surface an application sees: buffered reads,
// blocking or non-blocking writes, flush, and edge-triggered receive and
// drain notifications.
//
// # Pipelines
//
// Each direction is an independent single-producer/single-consumer
// circular buffer:
//
//   - RX: the driver's event handler pulls bytes from the stack into the
//     buffer; the application consumes them with Read, ReadByte, Peek.
//   - TX: the application produces bytes with Write; the event handler
//     hands packet-sized chunks to the stack and advances the buffer as
//     each chunk completes, keeping the pipe saturated without
//     application involvement.
//
// The only synchronization between the two contexts is one atomic
// occupancy counter per buffer; cursors are single-writer. No locks are
// taken on the data path.
//
// # Blocking Behavior
//
// Write suspends only in blocking mode (the default) when the TX buffer
// is full, yielding until a transmit completion frees space. TryWrite
// never suspends; it clamps the request to free space and reports the
// accepted count. Event-handler callbacks run in the driver's event
// context and must use TryWrite, never Write or Flush.
//
// # Packet Sizing
//
// Transmit chunks are capped at one byte less than the hardware FIFO
// granularity so that an exact-FIFO-size transfer never requires a
// zero-length terminator packet. See [PacketLimit].
package serial
