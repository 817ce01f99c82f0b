package sdspi

import (
	"errors"
	"log/slog"
	"time"
)

// transmit sends n bytes (len(tx)), taking the DMA path when allowDMA is
// set, the handle prefers DMA, a DMA engine is bound, and tx starts on a
// DMA_ALIGNMENT boundary; otherwise it falls back to a polled transfer with
// identical on-wire bytes (§4.A, §8's DMA/polled wire-identity property).
func (h *Handle) transmit(tx []byte, allowDMA bool) Status {
	return h.transmitReceive(tx, nil, allowDMA)
}

// transmitReceive exchanges len(tx) (or len(rx)) bytes full-duplex.
func (h *Handle) transmitReceive(tx, rx []byte, allowDMA bool) Status {
	n := len(tx)
	if n == 0 {
		n = len(rx)
	}
	if n == 0 {
		return StatusOK
	}
	if h.useDMAFor(tx, rx, allowDMA) {
		if tx != nil {
			h.cleanForDMA(tx)
		}
		if rx != nil {
			h.invalidateForDMA(rx)
		}
		status := h.dmaTransfer(tx, rx)
		if rx != nil {
			h.invalidateForDMA(rx)
		}
		return status
	}
	return h.polledTransfer(tx, rx)
}

// useDMAFor implements §4.A's DMA gating rule: DMA is used iff use_dma is
// set, a DMA engine is bound, allowDMA permits it for this call, and every
// non-nil buffer is aligned.
func (h *Handle) useDMAFor(tx, rx []byte, allowDMA bool) bool {
	if !allowDMA || !h.cfg.UseDMA || h.cfg.DMA == nil {
		return false
	}
	align := h.cfg.dmaAlignment()
	if tx != nil && !isAligned(tx, align) {
		return false
	}
	if rx != nil && !isAligned(rx, align) {
		return false
	}
	return true
}

// polledTransfer runs the peripheral's blocking Tx, bounded by
// SPI_IO_TIMEOUT_MS the way the board's Peripheral implementation is
// expected to enforce it (the polled path "spins within the peripheral's
// blocking API bounded by SPI_IO_TIMEOUT_MS", §5).
func (h *Handle) polledTransfer(tx, rx []byte) Status {
	if h.cfg.Bus == nil {
		return StatusError
	}
	if err := h.cfg.Bus.Tx(tx, rx); err != nil {
		h.logerr("polled transfer failed", slog.Any("err", errjoin(errPolledTransfer, err)))
		return StatusError
	}
	return StatusOK
}

var errPolledTransfer = errors.New("sdspi: polled transfer")

// transmitByte sends value on MOSI, discarding the received byte.
func (h *Handle) transmitByte(value byte) Status {
	var buf = [1]byte{value}
	return h.polledTransfer(buf[:], nil)
}

// receiveByte clocks out one 0xFF filler byte and returns the byte received,
// or TIMEOUT without touching the bus if a non-zero deadline has already
// passed; callers that wait for a particular byte loop over it. Unlike transmit/transmitReceive this never takes the
// DMA path: single-byte exchanges are the polling primitives the protocol
// layer uses to watch for R1 responses and tokens, where DMA's setup cost
// would dominate.
func (h *Handle) receiveByte(deadline time.Time) (byte, Status) {
	if !deadline.IsZero() && time.Now().After(deadline) {
		return 0, StatusTimeout
	}
	var tx = [1]byte{0xFF}
	var rx [1]byte
	if h.cfg.Bus == nil {
		return 0, StatusError
	}
	if err := h.cfg.Bus.Tx(tx[:], rx[:]); err != nil {
		return 0, StatusError
	}
	return rx[0], StatusOK
}
