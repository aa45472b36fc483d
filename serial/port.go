package serial

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/usbserial/driver"
	"github.com/ardnew/usbserial/pkg"
)

// progressTick bounds how long a blocked writer or flusher waits before
// re-checking its predicate when a wake-up is lost (for example when the
// host deasserts the line mid-drain).
const progressTick = 100 * time.Microsecond

// Config holds the buffer and packet sizing for a Port.
type Config struct {
	// RxBufferSize is the receive buffer capacity in bytes.
	// Must be a power of two.
	RxBufferSize int

	// TxBufferSize is the transmit buffer capacity in bytes.
	// Must be a power of two.
	TxBufferSize int

	// MaxPacketSize caps the chunk length handed to the stack per
	// transmit. Use PacketLimit to derive it from the hardware FIFO
	// size. Must be positive.
	MaxPacketSize int
}

// DefaultConfig returns the standard sizing: 512-byte buffers in each
// direction and the packet limit for a 64-byte FIFO.
func DefaultConfig() Config {
	return Config{
		RxBufferSize:  512,
		TxBufferSize:  512,
		MaxPacketSize: PacketLimit(64),
	}
}

func (c Config) validate() error {
	if !isPowerOfTwo(c.RxBufferSize) {
		return fmt.Errorf("%w: rx buffer size %d is not a power of two", pkg.ErrInvalidConfig, c.RxBufferSize)
	}
	if !isPowerOfTwo(c.TxBufferSize) {
		return fmt.Errorf("%w: tx buffer size %d is not a power of two", pkg.ErrInvalidConfig, c.TxBufferSize)
	}
	if c.MaxPacketSize <= 0 {
		return fmt.Errorf("%w: max packet size %d", pkg.ErrInvalidConfig, c.MaxPacketSize)
	}
	return nil
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// Port is a buffered serial port over a USB CDC-ACM device stack.
//
// One application goroutine may produce on the TX side and one may
// consume on the RX side; the driver's event context forms the other
// half of each pipeline. The two directions are fully independent.
type Port struct {
	drv driver.Driver

	rx ring
	tx ring

	maxPacket int

	// txSize is the length of the chunk currently handed to the stack;
	// zero when the pipe is idle. txBusy serializes chunk starts between
	// the application and event contexts so at most one chunk is ever
	// in flight.
	txSize atomic.Int32
	txBusy atomic.Bool

	// txTotal counts bytes accepted by Write but not yet transmitted
	// and acknowledged. The drain callback fires when it reaches zero.
	txTotal atomic.Int32

	blocking atomic.Bool

	// txProgress is a coalesced wake-up for blocked writers and Flush,
	// signaled on every transmit completion. Waiters re-check state
	// after every wake.
	txProgress chan struct{}

	// mu guards callback registration only; never taken on the data path.
	mu        sync.RWMutex
	onReceive func(int)
	onDrained func()
}

// New returns a Port over the given driver. The port starts in blocking
// mode; call Open to register for events and begin transfer.
func New(d driver.Driver, cfg Config) (*Port, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Port{
		drv:        d,
		rx:         newRing(cfg.RxBufferSize),
		tx:         newRing(cfg.TxBufferSize),
		maxPacket:  cfg.MaxPacketSize,
		txProgress: make(chan struct{}, 1),
	}
	p.blocking.Store(true)
	return p, nil
}

// Open registers the port's event handler with the driver and enables
// the channel. If the channel is already enabled (for example by a
// console layer sharing the endpoint), the port drains its own queue
// and takes over event notifications instead.
func (p *Port) Open() error {
	mask := driver.EventReceive | driver.EventTransmit
	if p.drv.Ready() {
		p.Flush()
		if err := p.drv.Notify(p.handleEvents, mask); err != nil {
			return fmt.Errorf("open port: %w", err)
		}
	} else if err := p.drv.Enable(p.handleEvents, mask); err != nil {
		return fmt.Errorf("open port: %w", err)
	}
	pkg.LogDebug(pkg.ComponentPort, "port opened",
		"rxSize", p.rx.size(),
		"txSize", p.tx.size(),
		"maxPacket", p.maxPacket)
	return nil
}

// Close drains pending output, disables the channel, and flushes both
// pipelines. Subsequent reads return empty and writes accept nothing
// until the port is opened again.
func (p *Port) Close() error {
	p.Flush()
	err := p.drv.Disable()
	p.resetPipelines()
	pkg.LogDebug(pkg.ComponentPort, "port closed")
	return err
}

// resetPipelines performs the logical flush tied to a not-ready
// transition: cursors and counters return to zero and any suspended
// writer is woken to observe the state change.
func (p *Port) resetPipelines() {
	p.rx.reset()
	p.tx.reset()
	p.txSize.Store(0)
	p.txBusy.Store(false)
	p.txTotal.Store(0)
	p.signalProgress()
}

// SetBlocking selects whether Write suspends on a full transmit buffer
// (true, the default) or clamps the request to free space (false).
// It may be changed at any time.
func (p *Port) SetBlocking(block bool) { p.blocking.Store(block) }

// Blocking reports the current overrun mode.
func (p *Port) Blocking() bool { return p.blocking.Load() }

// OnReceive registers fn to be invoked from the event context when the
// receive buffer transitions from empty to non-empty, with the number
// of bytes that arrived in the burst. The notification is
// edge-triggered: bursts landing on a non-empty buffer do not fire it.
// Pass nil to unregister. fn must not block.
func (p *Port) OnReceive(fn func(bytes int)) {
	p.mu.Lock()
	p.onReceive = fn
	p.mu.Unlock()
}

// OnTransmitDrained registers fn to be invoked from the event context
// when the last outstanding byte has been transmitted and acknowledged.
// Edge-triggered on reaching empty. Pass nil to unregister.
// fn must not block.
func (p *Port) OnTransmitDrained(fn func()) {
	p.mu.Lock()
	p.onDrained = fn
	p.mu.Unlock()
}

func (p *Port) receiveCallback() func(int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.onReceive
}

func (p *Port) drainedCallback() func() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.onDrained
}

// Available returns the number of bytes buffered for reading.
func (p *Port) Available() int { return p.rx.used() }

// AvailableForWrite returns the free space in the transmit buffer, or
// zero when the channel is not ready.
func (p *Port) AvailableForWrite() int {
	if !p.drv.Ready() {
		return 0
	}
	return p.tx.free()
}

// Peek returns the next buffered byte without consuming it, or -1 when
// the buffer is empty. It never suspends.
func (p *Port) Peek() int {
	if p.rx.used() == 0 {
		return -1
	}
	return int(p.rx.data[p.rx.read.Load()])
}

// ReadByte consumes and returns the next buffered byte, or -1 when the
// buffer is empty. It never suspends.
func (p *Port) ReadByte() int {
	if p.rx.used() == 0 {
		return -1
	}
	r := p.rx.read.Load()
	b := p.rx.data[r]
	p.rx.read.Store((r + 1) & p.rx.mask)
	p.rx.consumed(1)
	return int(b)
}

// Read drains up to len(buf) buffered bytes, looping over wrap
// boundaries. It never suspends and returns the number of bytes copied,
// zero when the buffer is empty.
func (p *Port) Read(buf []byte) int {
	count := 0
	for count < len(buf) {
		avail := p.rx.used()
		if avail == 0 {
			break
		}
		r := p.rx.read.Load()
		n := p.rx.run(r, avail)
		if rem := len(buf) - count; n > rem {
			n = rem
		}
		copy(buf[count:], p.rx.data[r:int(r)+n])
		count += n
		p.rx.read.Store((r + uint32(n)) & p.rx.mask)
		p.rx.consumed(n)
	}
	return count
}

// WriteByte writes a single byte with the same blocking behavior as
// Write. It returns 1 when the byte was accepted, 0 otherwise.
func (p *Port) WriteByte(b byte) int {
	buf := [1]byte{b}
	return p.Write(buf[:])
}

// Write appends buf to the transmit buffer and starts transmission if
// the pipe is idle. In blocking mode it suspends while the buffer is
// full; otherwise the request is clamped to free space. It returns the
// number of bytes accepted, which is short of len(buf) only on the
// non-blocking path or when the channel stops accepting data.
//
// Write must not be called from event-context callbacks; use TryWrite
// there.
func (p *Port) Write(buf []byte) int {
	return p.write(buf, true)
}

// TryWrite appends as much of buf as currently fits in the transmit
// buffer and starts transmission if the pipe is idle. It never
// suspends, regardless of the blocking mode, and returns the number of
// bytes accepted. This is the write path for event-context callers.
func (p *Port) TryWrite(buf []byte) int {
	return p.write(buf, false)
}

func (p *Port) write(buf []byte, canBlock bool) int {
	if !p.writable() {
		return 0
	}

	size := len(buf)
	// Clamp the request to free space unless this call may suspend.
	if !canBlock || !p.blocking.Load() {
		if free := p.tx.free(); size > free {
			size = free
		}
	}
	if size == 0 {
		return 0
	}

	// Account the full accepted size up front so a completion draining
	// concurrently cannot observe a spurious empty pipeline mid-write.
	p.txTotal.Add(int32(size))

	count := 0
	for count < size {
		free := p.tx.free()
		if free == 0 {
			// Only a blocking-mode task-context call reaches a full
			// buffer; clamped calls were pre-limited to free space.
			p.kickTransmit()
			if !p.waitProgress() {
				// Channel stopped accepting data; give back the
				// remainder that will never be copied.
				p.txTotal.Add(int32(count - size))
				return count
			}
			continue
		}
		w := p.tx.write.Load()
		n := p.tx.run(w, free)
		if rem := size - count; n > rem {
			n = rem
		}
		copy(p.tx.data[w:int(w)+n], buf[count:count+n])
		count += n
		p.tx.write.Store((w + uint32(n)) & p.tx.mask)
		p.tx.produced(n)
	}

	p.kickTransmit()
	return count
}

// writable reports whether the channel currently accepts output: the
// stack is ready and the host asserts RTS.
func (p *Port) writable() bool {
	return p.drv.Ready() && p.drv.LineState().RTS()
}

// waitProgress suspends until a transmit completion (or the fallback
// tick) and reports whether the channel still accepts output.
func (p *Port) waitProgress() bool {
	select {
	case <-p.txProgress:
	case <-time.After(progressTick):
	}
	return p.writable()
}

func (p *Port) signalProgress() {
	select {
	case p.txProgress <- struct{}{}:
	default:
	}
}

// kickTransmit hands the next chunk to the stack if data is queued and
// the pipe is idle. txBusy is claimed with a compare-and-swap so the
// application and event contexts can both call this without ever
// starting a second chunk; the claim is released by the completion
// handler (or here, when there is nothing to send).
func (p *Port) kickTransmit() {
	if !p.drv.Done() {
		return
	}
	if !p.txBusy.CompareAndSwap(false, true) {
		return
	}
	queued := p.tx.used()
	if queued == 0 {
		p.txBusy.Store(false)
		return
	}
	// The read cursor cannot move while txBusy is held: only the
	// completion handler advances it, and completions only follow a
	// started chunk.
	r := p.tx.read.Load()
	n := chunkSize(queued, r, p.tx.size(), p.maxPacket)
	p.txSize.Store(int32(n))
	if err := p.drv.Transmit(p.tx.data[r : int(r)+n]); err != nil {
		p.txSize.Store(0)
		p.txBusy.Store(false)
		pkg.LogWarn(pkg.ComponentPort, "transmit rejected", "bytes", n, "error", err)
	}
}

// Flush suspends until the transmit buffer is empty and the stack
// reports no chunk in flight. It returns immediately when already
// drained or when the channel is not ready. Flush must not be called
// from event-context callbacks.
func (p *Port) Flush() {
	for p.tx.used() != 0 || !p.drv.Done() {
		if !p.drv.Ready() {
			return
		}
		select {
		case <-p.txProgress:
		case <-time.After(progressTick):
		}
	}
}

// Done reports whether all written bytes have been handed to the stack
// and acknowledged.
func (p *Port) Done() bool {
	return p.tx.used() == 0 && p.drv.Done()
}

// Connected reports whether a host is attached and has opened the port.
func (p *Port) Connected() bool { return p.drv.Connected() }

// Baud returns the host-negotiated data terminal rate.
func (p *Port) Baud() uint32 { return p.drv.LineCoding().DTERate }

// StopBits returns the host-negotiated stop bit setting.
func (p *Port) StopBits() uint8 { return p.drv.LineCoding().CharFormat }

// Parity returns the host-negotiated parity setting.
func (p *Port) Parity() uint8 { return p.drv.LineCoding().ParityType }

// DataBits returns the host-negotiated data bit count.
func (p *Port) DataBits() uint8 { return p.drv.LineCoding().DataBits }

// DTR reports the host's Data Terminal Ready line.
func (p *Port) DTR() bool { return p.drv.LineState().DTR() }

// RTS reports the host's Request To Send line.
func (p *Port) RTS() bool { return p.drv.LineState().RTS() }
