// Package pipe implements the driver contract over a pair of named
// pipes (FIFOs), standing in for the USB endpoint hardware on a host
// machine.
//
// Two cross-wired drivers form a full-duplex byte path between
// processes (or between two ports in one process):
//
//	a := pipe.New(dir+"/a2b", dir+"/b2a")
//	b := pipe.New(dir+"/b2a", dir+"/a2b")
//
// Each driver writes framed messages to its transmit FIFO and pumps
// its receive FIFO on a single event goroutine, which models the
// single interrupt-context execution stream of real endpoint hardware:
// all Handler invocations happen on that goroutine.
//
// # Framing
//
// Messages carry a three-byte header (type, little-endian length)
// followed by the payload. Besides data frames, a peer can send line
// control frames; the message types reuse the CDC request codes:
//
//	0x02  data
//	0x20  line coding (7-byte SET_LINE_CODING layout)
//	0x22  line state (2-byte little-endian bit mask)
//
// SendLineCoding and SendLineState let a peer drive the other end's
// negotiated parameters, which is how host-side tests exercise the
// port's RTS gating and baud accessors.
package pipe
