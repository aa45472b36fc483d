package serial

// chunkSize computes the length of the next chunk to hand to the stack:
// the queued byte count, capped to the contiguous run between the read
// cursor and the end of the buffer, capped to the maximum packet size.
// It is never zero while queued is positive.
func chunkSize(queued int, readCursor uint32, capacity, maxPacket int) int {
	n := queued
	if run := capacity - int(readCursor); n > run {
		n = run
	}
	if n > maxPacket {
		n = maxPacket
	}
	return n
}

// PacketLimit returns the transmit chunk limit for a hardware FIFO of
// the given size: the FIFO size rounded up to a whole number of 64-byte
// packets, minus one. Keeping chunks one byte short of the packet
// boundary means an exact-FIFO-size transfer never ends on a full
// packet, so the stack never has to emit a zero-length terminator.
func PacketLimit(fifoSize int) int {
	return ((fifoSize + 63) &^ 63) - 1
}
