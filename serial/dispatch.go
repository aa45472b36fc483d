package serial

import "github.com/ardnew/usbserial/driver"

// handleEvents is the port's entry point for the driver's event
// context. It is registered with the driver at Open; a single
// notification may carry both event kinds.
func (p *Port) handleEvents(ev driver.Event) {
	if ev.Has(driver.EventReceive) {
		p.handleReceive()
	}
	if ev.Has(driver.EventTransmit) {
		p.handleTransmit()
	}
}

// handleReceive pulls one burst from the stack into the receive buffer:
// repeatedly the longest contiguous run the write region allows, until
// a delivery returns zero bytes or the buffer fills. The receive
// callback fires once per empty-to-non-empty transition with the burst
// total, bounding notification frequency.
func (p *Port) handleReceive() {
	empty := p.rx.used() == 0
	total := 0
	for {
		free := p.rx.free()
		if free == 0 {
			break
		}
		w := p.rx.write.Load()
		run := p.rx.run(w, free)
		n := p.drv.Receive(p.rx.data[w : int(w)+run])
		if n == 0 {
			break
		}
		p.rx.write.Store((w + uint32(n)) & p.rx.mask)
		p.rx.produced(n)
		total += n
	}
	if empty && total > 0 {
		if cb := p.receiveCallback(); cb != nil {
			cb(total)
		}
	}
}

// handleTransmit retires the chunk whose completion the stack just
// signaled, then immediately starts the next one if data remains
// queued, keeping the pipe saturated without application involvement.
// The drain callback fires once when the outstanding total reaches
// zero.
func (p *Port) handleTransmit() {
	n := p.txSize.Load()
	if n > 0 {
		r := p.tx.read.Load()
		p.tx.read.Store((r + uint32(n)) & p.tx.mask)
		p.tx.consumed(int(n))
		p.txTotal.Add(-n)
		p.txSize.Store(0)
	}
	p.txBusy.Store(false)

	p.kickTransmit()

	if n > 0 && p.txTotal.Load() == 0 {
		if cb := p.drainedCallback(); cb != nil {
			cb()
		}
	}
	p.signalProgress()
}
