package pipe

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ardnew/usbserial/driver"
	"github.com/ardnew/usbserial/pkg"
)

// MaxPayload is the largest frame payload, matching the largest bulk
// transfer the framing supports.
const MaxPayload = 512

// Message types for the pipe protocol. Data aside, the values reuse
// the CDC request codes they emulate.
const (
	msgData       = 0x02
	msgLineCoding = 0x20 // SET_LINE_CODING
	msgLineState  = 0x22 // SET_CONTROL_LINE_STATE
)

// headerSize is type (1) + little-endian length (2).
const headerSize = 3

// readPoll is the deadline granularity of the event loop; it bounds
// how long a queued transmit or a shutdown waits while the loop is
// parked on an idle receive FIFO.
const readPoll = 2 * time.Millisecond

// fullRetry paces redelivery of a receive event while the port buffer
// is full, standing in for the hardware NAK-and-retry cycle.
const fullRetry = 500 * time.Microsecond

// Driver implements driver.Driver over two named pipes.
type Driver struct {
	txPath string // this side writes frames here
	rxPath string // this side reads frames here

	mu      sync.RWMutex
	handler driver.Handler
	mask    driver.Event
	enabled bool
	coding  driver.LineCoding
	state   driver.LineState

	txFile *os.File
	rxFile *os.File

	// wmu serializes frame writes between Transmit completion and the
	// SendLine* control methods.
	wmu      sync.Mutex
	writeBuf [headerSize + MaxPayload]byte

	// pending stages one received data frame until the port drains it.
	pending    [MaxPayload]byte
	pendingLen int
	pendingOff int

	inFlight atomic.Bool
	txCh     chan []byte

	closeCh chan struct{}
	loop    sync.WaitGroup
}

// New returns a driver that writes frames to the FIFO at txPath and
// reads frames from the FIFO at rxPath. The pipes are created on
// Enable if they do not exist.
func New(txPath, rxPath string) *Driver {
	return &Driver{
		txPath: txPath,
		rxPath: rxPath,
		coding: driver.DefaultLineCoding,
		// Until a peer says otherwise, behave like a host that opened
		// the port with both lines asserted.
		state: driver.LineStateDTR | driver.LineStateRTS,
	}
}

// Enable creates and opens both FIFOs, registers the handler, and
// starts the event goroutine.
func (d *Driver) Enable(h driver.Handler, mask driver.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.enabled {
		return pkg.ErrAlreadyEnabled
	}

	if err := mkfifo(d.txPath); err != nil {
		return err
	}
	if err := mkfifo(d.rxPath); err != nil {
		return err
	}

	// O_RDWR keeps both pipe ends held so open never blocks and reads
	// never see EOF when the peer closes; O_NONBLOCK hands the fds to
	// the runtime poller so deadlines work.
	var err error
	d.txFile, err = os.OpenFile(d.txPath, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.txPath, err)
	}
	d.rxFile, err = os.OpenFile(d.rxPath, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		d.txFile.Close()
		d.txFile = nil
		return fmt.Errorf("open %s: %w", d.rxPath, err)
	}

	d.handler = h
	d.mask = mask
	d.enabled = true
	d.txCh = make(chan []byte, 1)
	d.closeCh = make(chan struct{})
	d.pendingLen = 0
	d.pendingOff = 0
	d.inFlight.Store(false)

	d.loop.Add(1)
	go d.eventLoop()

	pkg.LogInfo(pkg.ComponentPipe, "pipe driver enabled",
		"tx", d.txPath,
		"rx", d.rxPath)
	return nil
}

// Notify replaces the registered handler and mask.
func (d *Driver) Notify(h driver.Handler, mask driver.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return pkg.ErrNotEnabled
	}
	d.handler = h
	d.mask = mask
	return nil
}

// Disable stops the event goroutine and closes both FIFOs. The pipe
// files themselves are left in place for the peer.
func (d *Driver) Disable() error {
	d.mu.Lock()
	if !d.enabled {
		d.mu.Unlock()
		return pkg.ErrNotEnabled
	}
	d.enabled = false
	d.handler = nil
	close(d.closeCh)
	d.mu.Unlock()

	d.loop.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.txFile != nil {
		d.txFile.Close()
		d.txFile = nil
	}
	if d.rxFile != nil {
		d.rxFile.Close()
		d.rxFile = nil
	}
	d.inFlight.Store(false)

	pkg.LogInfo(pkg.ComponentPipe, "pipe driver disabled")
	return nil
}

// Transmit queues one chunk for the event goroutine to frame and
// write. Completion is signaled with EventTransmit once the frame has
// been handed to the pipe.
func (d *Driver) Transmit(p []byte) error {
	d.mu.RLock()
	enabled := d.enabled
	d.mu.RUnlock()
	if !enabled {
		return pkg.ErrNotEnabled
	}
	if len(p) > MaxPayload {
		return fmt.Errorf("%w: chunk of %d exceeds %d", pkg.ErrBufferTooSmall, len(p), MaxPayload)
	}
	if !d.inFlight.CompareAndSwap(false, true) {
		return pkg.ErrBusy
	}
	d.txCh <- p
	return nil
}

// Receive copies staged bytes from the current data frame. Zero means
// no data is staged right now.
func (d *Driver) Receive(p []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := copy(p, d.pending[d.pendingOff:d.pendingLen])
	d.pendingOff += n
	if d.pendingOff == d.pendingLen {
		d.pendingOff = 0
		d.pendingLen = 0
	}
	return n
}

// Done reports whether no transmit chunk is in flight.
func (d *Driver) Done() bool { return !d.inFlight.Load() }

// Ready reports whether the driver is enabled.
func (d *Driver) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// Connected reports whether the peer asserts DTR.
func (d *Driver) Connected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled && d.state.DTR()
}

// LineCoding returns the parameters most recently sent by the peer.
func (d *Driver) LineCoding() driver.LineCoding {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.coding
}

// LineState returns the line state most recently sent by the peer.
func (d *Driver) LineState() driver.LineState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// SendLineCoding sends a line coding frame to the peer.
func (d *Driver) SendLineCoding(lc driver.LineCoding) error {
	var buf [driver.LineCodingSize]byte
	if lc.MarshalTo(buf[:]) == 0 {
		return pkg.ErrBufferTooSmall
	}
	return d.writeFrame(msgLineCoding, buf[:])
}

// SendLineState sends a line state frame to the peer.
func (d *Driver) SendLineState(s driver.LineState) error {
	buf := [2]byte{byte(s), byte(s >> 8)}
	return d.writeFrame(msgLineState, buf[:])
}

// eventLoop is the single event-context goroutine: it services queued
// transmits, redelivers receive events while a frame is staged, and
// otherwise pumps the receive FIFO.
func (d *Driver) eventLoop() {
	defer d.loop.Done()
	for {
		select {
		case <-d.closeCh:
			return
		case chunk := <-d.txCh:
			err := d.writeFrame(msgData, chunk)
			d.inFlight.Store(false)
			if err != nil {
				pkg.LogWarn(pkg.ComponentPipe, "transmit frame failed", "error", err)
			}
			d.raise(driver.EventTransmit)
			continue
		default:
		}

		if d.staged() > 0 {
			d.raise(driver.EventReceive)
			if d.staged() > 0 {
				// Port buffer full; pace the retry.
				time.Sleep(fullRetry)
			}
			continue
		}

		if err := d.readFrame(); err != nil {
			if os.IsTimeout(err) {
				continue
			}
			select {
			case <-d.closeCh:
				return
			default:
			}
			pkg.LogWarn(pkg.ComponentPipe, "receive frame failed", "error", err)
			time.Sleep(readPoll)
		}
	}
}

func (d *Driver) staged() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pendingLen - d.pendingOff
}

// raise delivers ev to the registered handler if its mask matches.
func (d *Driver) raise(ev driver.Event) {
	d.mu.RLock()
	h := d.handler
	deliver := d.mask&ev != 0
	d.mu.RUnlock()
	if deliver && h != nil {
		h(ev)
	}
}

// readFrame reads one complete frame and dispatches it by type.
// A deadline timeout before the first header byte is reported as a
// timeout error so the loop can service other work.
func (d *Driver) readFrame() error {
	var hdr [headerSize]byte
	if err := d.readFull(hdr[:], true); err != nil {
		return err
	}

	typ := hdr[0]
	length := int(hdr[1]) | int(hdr[2])<<8
	if length > MaxPayload {
		return fmt.Errorf("%w: frame length %d", pkg.ErrProtocol, length)
	}

	switch typ {
	case msgData:
		d.mu.Lock()
		buf := d.pending[:length]
		d.mu.Unlock()
		if err := d.readFull(buf, false); err != nil {
			return err
		}
		d.mu.Lock()
		d.pendingLen = length
		d.pendingOff = 0
		d.mu.Unlock()

	case msgLineCoding:
		var buf [driver.LineCodingSize]byte
		if length != len(buf) {
			return fmt.Errorf("%w: line coding length %d", pkg.ErrProtocol, length)
		}
		if err := d.readFull(buf[:], false); err != nil {
			return err
		}
		var lc driver.LineCoding
		driver.ParseLineCoding(buf[:], &lc)
		d.mu.Lock()
		d.coding = lc
		d.mu.Unlock()
		pkg.LogDebug(pkg.ComponentPipe, "line coding set",
			"baud", lc.DTERate,
			"dataBits", lc.DataBits,
			"parity", lc.ParityType,
			"stopBits", lc.CharFormat)

	case msgLineState:
		var buf [2]byte
		if length != len(buf) {
			return fmt.Errorf("%w: line state length %d", pkg.ErrProtocol, length)
		}
		if err := d.readFull(buf[:], false); err != nil {
			return err
		}
		s := driver.LineState(uint16(buf[0]) | uint16(buf[1])<<8)
		d.mu.Lock()
		d.state = s
		d.mu.Unlock()
		pkg.LogDebug(pkg.ComponentPipe, "line state set",
			"dtr", s.DTR(),
			"rts", s.RTS())

	default:
		return fmt.Errorf("%w: unknown message type 0x%02X", pkg.ErrProtocol, typ)
	}

	return nil
}

// readFull reads exactly len(buf) bytes from the receive FIFO.
// When idle is true a timeout with no bytes read is surfaced to the
// caller; once a frame has started, reads retry until it completes.
func (d *Driver) readFull(buf []byte, idle bool) error {
	total := 0
	for total < len(buf) {
		select {
		case <-d.closeCh:
			return pkg.ErrClosed
		default:
		}
		d.rxFile.SetReadDeadline(time.Now().Add(readPoll))
		n, err := d.rxFile.Read(buf[total:])
		total += n
		if err != nil {
			if os.IsTimeout(err) {
				if idle && total == 0 {
					return err
				}
				continue
			}
			return err
		}
	}
	return nil
}

// writeFrame frames and writes one message to the transmit FIFO.
func (d *Driver) writeFrame(typ byte, payload []byte) error {
	d.mu.RLock()
	f := d.txFile
	d.mu.RUnlock()
	if f == nil {
		return pkg.ErrNotEnabled
	}

	d.wmu.Lock()
	defer d.wmu.Unlock()

	buf := d.writeBuf[:headerSize+len(payload)]
	buf[0] = typ
	buf[1] = byte(len(payload))
	buf[2] = byte(len(payload) >> 8)
	copy(buf[headerSize:], payload)

	written := 0
	for written < len(buf) {
		n, err := f.Write(buf[written:])
		written += n
		if err != nil {
			return err
		}
	}
	return nil
}

func mkfifo(path string) error {
	if err := syscall.Mkfifo(path, 0o666); err != nil && !os.IsExist(err) {
		return fmt.Errorf("mkfifo %s: %w", path, err)
	}
	return nil
}

// Compile-time interface check
var _ driver.Driver = (*Driver)(nil)
