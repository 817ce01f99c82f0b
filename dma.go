package sdspi

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// Peripheral is the blocking/polled SPI transfer primitive component A
// falls back to when DMA is unavailable, unaligned, or disabled. Its shape
// matches tinygo.org/x/drivers.SPI's Tx method so a board's real hardware
// SPI peripheral binding (or a bit-banged implementation, see
// board_bitbang.go) satisfies it directly.
type Peripheral interface {
	// Tx exchanges len(w) (or len(r), whichever is non-nil) bytes
	// full-duplex. Either w or r may be nil for a one-directional transfer.
	Tx(w, r []byte) error
}

// OutputPin drives a GPIO high (true) or low (false), following cyrw's
// outputPin convention for CS and card-power pins.
type OutputPin func(bool)

// DMAEngine issues an asynchronous full-duplex transfer and reports
// completion later, from interrupt context, via HandleDMAComplete or
// HandleDMAError (which find the owning Handle through the package-level ISR
// owner pointer, §3/§9). Issue returning a non-nil error means the
// peripheral rejected the transfer outright and no completion interrupt
// will follow (§4.A: "a DMA issue that returns a peripheral error
// immediately yields ERROR").
type DMAEngine interface {
	Issue(w, r []byte) error
	Abort()
}

// dmaOwner is the single process-wide pointer DMA completion interrupts use
// to find the handle that issued the in-flight transfer, per §3's "ISR
// owner pointer" and §9's design note. A fixed map from peripheral identity
// to *Handle would be the multi-instance extension; this driver supports
// one card.
var dmaOwner atomic.Pointer[Handle]

// HandleDMAComplete is called from the SPI peripheral's TX-done, RX-done or
// transmit-receive-RX-done interrupt. It looks up the owning handle via the
// package-level registration done by New and wakes whichever rendezvous
// (RTOS binary signal or polled flag) that handle's config selected.
func HandleDMAComplete(tx, rx bool) {
	h := dmaOwner.Load()
	if h == nil {
		return
	}
	h.dmaComplete(tx, rx)
}

// HandleDMAError is called from the SPI peripheral's error interrupt. Per
// §5, an error interrupt releases both completion signals so neither the
// RTOS nor the non-RTOS rendezvous is left waiting on a transfer that will
// never finish cleanly.
func HandleDMAError() {
	h := dmaOwner.Load()
	if h == nil {
		return
	}
	h.dmaComplete(true, true)
}

func (h *Handle) dmaComplete(tx, rx bool) {
	if tx {
		h.dmaTxFlag.Store(true)
		select {
		case h.dmaTxDone <- struct{}{}:
		default:
		}
	}
	if rx {
		h.dmaRxFlag.Store(true)
		select {
		case h.dmaRxDone <- struct{}{}:
		default:
		}
	}
}

// waitDMA rendezvous with a single in-flight DMA transfer (tx, rx, or both
// for a transmit-receive), per §5's two selectable implementations: a
// blocking take on the binary signal when RTOSEnabled, else a poll of the
// volatile completion flag with a 1ms backoff. Aborts the engine and
// reports TIMEOUT if DMA_TIMEOUT_MS elapses first.
func (h *Handle) waitDMA(tx, rx bool) Status {
	deadline := time.Now().Add(h.cfg.DMATimeout)
	if h.cfg.RTOSEnabled {
		if tx && !h.waitSignal(h.dmaTxDone, deadline) {
			h.cfg.DMA.Abort()
			return StatusTimeout
		}
		if rx && !h.waitSignal(h.dmaRxDone, deadline) {
			h.cfg.DMA.Abort()
			return StatusTimeout
		}
		return StatusOK
	}
	for {
		txOK := !tx || h.dmaTxFlag.Load()
		rxOK := !rx || h.dmaRxFlag.Load()
		if txOK && rxOK {
			return StatusOK
		}
		if time.Now().After(deadline) {
			h.cfg.DMA.Abort()
			return StatusTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *Handle) waitSignal(ch chan struct{}, deadline time.Time) bool {
	t := time.NewTimer(time.Until(deadline))
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}

// dmaTransfer issues an asynchronous transfer and rendezvous with its
// completion, implementing §4.A's "Completion" rule in full: immediate
// ERROR on a rejected issue, TIMEOUT with a peripheral abort if the
// completion signal never arrives.
func (h *Handle) dmaTransfer(w, r []byte) Status {
	if !h.dmaInFlight.CompareAndSwap(false, true) {
		h.logerr("dma transfer rejected", slog.Any("err", ErrAlreadyRunning))
		return StatusBusy
	}
	defer h.dmaInFlight.Store(false)

	h.dmaTxFlag.Store(false)
	h.dmaRxFlag.Store(false)
	drainSignal(h.dmaTxDone)
	drainSignal(h.dmaRxDone)
	if err := h.cfg.DMA.Issue(w, r); err != nil {
		h.warn("dma issue failed", slog.Any("err", errjoin(errDMAIssue, err)))
		return StatusError
	}
	return h.waitDMA(w != nil, r != nil)
}

var errDMAIssue = errors.New("sdspi: dma issue")

func drainSignal(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
