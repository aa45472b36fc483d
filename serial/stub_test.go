package serial

import (
	"sync"

	"github.com/ardnew/usbserial/driver"
	"github.com/ardnew/usbserial/pkg"
)

// stubDriver is a deterministic in-memory driver for exercising the
// port: tests inject receive data, observe transmitted chunks, and
// acknowledge completions explicitly.
type stubDriver struct {
	mu      sync.Mutex
	handler driver.Handler
	mask    driver.Event

	enabled bool
	ready   bool
	state   driver.LineState
	coding  driver.LineCoding

	pending  []byte   // bytes the "stack" has received but not delivered
	chunks   [][]byte // every chunk handed to Transmit, in order
	inFlight bool
}

// newStubDriver returns a disabled driver; Enable (via Port.Open)
// brings it to the ready state with DTR and RTS asserted.
func newStubDriver() *stubDriver {
	return &stubDriver{
		state:  driver.LineStateDTR | driver.LineStateRTS,
		coding: driver.DefaultLineCoding,
	}
}

func (d *stubDriver) Enable(h driver.Handler, mask driver.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enabled {
		return pkg.ErrAlreadyEnabled
	}
	d.enabled = true
	d.ready = true
	d.handler = h
	d.mask = mask
	return nil
}

func (d *stubDriver) Notify(h driver.Handler, mask driver.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled {
		return pkg.ErrNotEnabled
	}
	d.handler = h
	d.mask = mask
	return nil
}

func (d *stubDriver) Disable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = false
	d.ready = false
	d.handler = nil
	d.inFlight = false
	return nil
}

func (d *stubDriver) Transmit(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight {
		return pkg.ErrBusy
	}
	d.inFlight = true
	d.chunks = append(d.chunks, append([]byte(nil), p...))
	return nil
}

func (d *stubDriver) Receive(p []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n
}

func (d *stubDriver) Done() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.inFlight
}

func (d *stubDriver) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

func (d *stubDriver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled && d.state.DTR()
}

func (d *stubDriver) LineCoding() driver.LineCoding {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.coding
}

func (d *stubDriver) LineState() driver.LineState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// setLineState simulates a SET_CONTROL_LINE_STATE from the host.
func (d *stubDriver) setLineState(s driver.LineState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// setReady simulates the stack leaving or entering the configured state.
func (d *stubDriver) setReady(ready bool) {
	d.mu.Lock()
	d.ready = ready
	d.mu.Unlock()
}

// inject queues bytes on the stack side and raises a receive event, as
// the endpoint interrupt would.
func (d *stubDriver) inject(p []byte) {
	d.mu.Lock()
	d.pending = append(d.pending, p...)
	h := d.handler
	deliver := d.mask.Has(driver.EventReceive)
	d.mu.Unlock()
	if deliver && h != nil {
		h(driver.EventReceive)
	}
}

// complete acknowledges the chunk in flight and raises the transmit
// completion event.
func (d *stubDriver) complete() bool {
	d.mu.Lock()
	fin := d.inFlight
	d.inFlight = false
	h := d.handler
	deliver := fin && d.mask.Has(driver.EventTransmit)
	d.mu.Unlock()
	if deliver && h != nil {
		h(driver.EventTransmit)
	}
	return fin
}

// drain acknowledges chunks until the pipe goes idle, returning the
// number of completions delivered.
func (d *stubDriver) drain() int {
	n := 0
	for d.complete() {
		n++
	}
	return n
}

// transmitted returns the concatenation of all chunks handed over.
func (d *stubDriver) transmitted() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []byte
	for _, c := range d.chunks {
		out = append(out, c...)
	}
	return out
}

func (d *stubDriver) chunkLens() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	lens := make([]int, len(d.chunks))
	for i, c := range d.chunks {
		lens[i] = len(c)
	}
	return lens
}

var _ driver.Driver = (*stubDriver)(nil)
