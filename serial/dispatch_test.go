package serial

import (
	"bytes"
	"testing"

	"github.com/ardnew/usbserial/driver"
)

func TestReceiveBurst_DeliversConcatenation(t *testing.T) {
	p, d := newTestPort(t)

	// Queue fragments on the stack side, then deliver one event for the
	// whole burst; fragmentation must not be observable.
	d.pending = append(d.pending, []byte("abc")...)
	d.pending = append(d.pending, []byte("defg")...)
	d.inject(nil)

	buf := make([]byte, 16)
	if n := p.Read(buf); n != 7 || string(buf[:n]) != "abcdefg" {
		t.Errorf("Read = %d %q, want 7 \"abcdefg\"", n, buf[:n])
	}
}

func TestReceiveCallback_EdgeTriggered(t *testing.T) {
	p, d := newTestPort(t)

	var calls []int
	p.OnReceive(func(n int) { calls = append(calls, n) })

	// Burst of 10 then end-of-data: exactly one callback with 10.
	d.inject(pattern(10))
	if len(calls) != 1 || calls[0] != 10 {
		t.Fatalf("calls = %v, want [10]", calls)
	}

	// Buffer is non-empty: further bursts stay silent.
	d.inject(pattern(5))
	if len(calls) != 1 {
		t.Errorf("callback fired on non-empty buffer: %v", calls)
	}

	// Drain, then the next burst fires again.
	p.Read(make([]byte, 64))
	d.inject(pattern(3))
	if len(calls) != 2 || calls[1] != 3 {
		t.Errorf("calls = %v, want [10 3]", calls)
	}
}

func TestReceiveCallback_SilentOnEmptyBurst(t *testing.T) {
	p, d := newTestPort(t)

	fired := false
	p.OnReceive(func(int) { fired = true })

	d.inject(nil) // event with no data queued

	if fired {
		t.Error("callback fired for a zero-byte burst")
	}
	if got := p.Available(); got != 0 {
		t.Errorf("Available = %d, want 0", got)
	}
}

func TestReceiveBurst_StopsWhenBufferFull(t *testing.T) {
	p, d := newTestPort(t)

	// More than the 64-byte buffer: the burst stops at capacity and the
	// stack keeps the remainder.
	d.inject(pattern(100))

	if got := p.Available(); got != 64 {
		t.Fatalf("Available = %d, want 64", got)
	}

	buf := make([]byte, 64)
	if n := p.Read(buf); n != 64 || !bytes.Equal(buf, pattern(100)[:64]) {
		t.Fatalf("first drain: n=%d", n)
	}

	// The next event pulls what the stack held back.
	d.inject(nil)
	if n := p.Read(buf); n != 36 || !bytes.Equal(buf[:n], pattern(100)[64:]) {
		t.Errorf("second drain: n=%d, want the remaining 36 bytes in order", n)
	}
}

func TestCombinedEvent_HandlesBothDirections(t *testing.T) {
	p, d := newTestPort(t)

	p.Write(pattern(10)) // one chunk in flight

	// Stack receives data and completes the chunk in one notification.
	d.mu.Lock()
	d.pending = append(d.pending, []byte("rx")...)
	d.inFlight = false
	h := d.handler
	d.mu.Unlock()
	h(driver.EventReceive | driver.EventTransmit)

	if got := p.Available(); got != 2 {
		t.Errorf("Available = %d, want 2", got)
	}
	if !p.Done() {
		t.Error("Done() = false after combined completion")
	}
}

func TestTransmitCompletion_RestartsPipeline(t *testing.T) {
	p, d := newTestPort(t)

	// 64 bytes queue as 63+1; the second chunk must start from the
	// completion handler with no application involvement.
	p.Write(pattern(64))

	if lens := d.chunkLens(); len(lens) != 1 {
		t.Fatalf("chunks before completion = %v, want one", lens)
	}
	d.complete()
	if lens := d.chunkLens(); len(lens) != 2 || lens[1] != 1 {
		t.Fatalf("chunks after completion = %v, want [63 1]", lens)
	}
	d.complete()
	if !p.Done() {
		t.Error("Done() = false after final completion")
	}
}

func TestFIFOOrder_InterleavedWritesAndCompletions(t *testing.T) {
	p, d := newTestPort(t)

	var want []byte
	next := byte(0)
	write := func(n int) {
		chunk := make([]byte, n)
		for i := range chunk {
			chunk[i] = next
			next++
		}
		want = append(want, chunk...)
		if got := p.Write(chunk); got != n {
			t.Fatalf("Write(%d) = %d", n, got)
		}
	}

	write(40)
	d.complete() // retire 40, pipe idle
	write(30)    // wraps the 64-byte buffer
	write(20)
	d.drain()
	write(64)
	d.drain()

	if got := d.transmitted(); !bytes.Equal(got, want) {
		t.Error("interleaved writes reordered or corrupted the stream")
	}
	for _, n := range d.chunkLens() {
		if n == 0 || n > 63 {
			t.Errorf("chunk length %d outside (0, 63]", n)
		}
	}
}
