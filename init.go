package sdspi

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kpf5297/fatfs-sdcard-spi/sdwire"
)

// Init runs the SD-SPI power-up/reset sequence (§4.C): ten cold clocks,
// CMD0 to idle, CMD8 voltage check (detecting SDv2), the CMD55+ACMD41
// operating-condition loop, CMD58 for OCR/CCS, CMD16 SET_BLOCKLEN for SDSC
// cards, and a CSD read for capacity. On success initialized becomes true
// and the handle is ready for I/O; on any failure it is left false.
func (h *Handle) Init() Status {
	release, status := h.acquire()
	if status != StatusOK {
		return h.finish(status)
	}
	defer release()

	if h.cfg.Bus == nil {
		h.logerr("cannot init", slog.Any("err", ErrNoBus))
		return h.finish(StatusError)
	}
	if h.cfg.CS == nil {
		h.logerr("cannot init", slog.Any("err", ErrNoCS))
		return h.finish(StatusError)
	}
	if status := h.checkPresence(); status != StatusOK {
		return h.finish(status)
	}

	h.stats.InitAttempts++
	h.initialized = false

	for i := 0; i < 10; i++ {
		h.transmitByte(0xFF)
	}

	deadline := time.Now().Add(h.cfg.InitTimeout)
	var r1 sdwire.R1
	err := backoff.Retry(func() error {
		status = h.withCS(func() Status {
			var s Status
			r1, s = h.sendCommand(sdwire.CMD0, 0, sdwire.CRCCmd0)
			return s
		})
		if status == StatusOK && uint8(r1) == 0x01 {
			return nil
		}
		return errRetry
	}, initBackoff(deadline))
	if err != nil || uint8(r1) != 0x01 {
		h.logerr("cmd0 never reached idle state")
		return h.finish(StatusError)
	}

	var r7 [4]byte
	status = h.withCS(func() Status {
		s := Status(0)
		var resp sdwire.R1
		resp, s = h.sendCommand(sdwire.CMD8, sdwire.IfCondArg, sdwire.CRCCmd8)
		if s != StatusOK {
			return s
		}
		payload, s := h.readTrailingBytes(4)
		if s == StatusOK {
			copy(r7[:], payload)
		}
		r1 = resp
		return StatusOK
	})
	sdv2 := status == StatusOK && uint8(r1) == 0x01 && r7[2] == 0x01 && r7[3] == 0xAA

	var acmdArg uint32
	if sdv2 {
		acmdArg = sdwire.HCSBit
	}
	deadline = time.Now().Add(h.cfg.InitTimeout)
	err = backoff.Retry(func() error {
		status = h.withCS(func() Status {
			var s Status
			r1, s = h.appCommand(sdwire.ACMD41, acmdArg)
			return s
		})
		if status == StatusOK && r1.IsZero() {
			return nil
		}
		return errRetry
	}, initBackoff(deadline))
	if err != nil || !r1.IsZero() {
		h.logerr("acmd41 timed out waiting for ready")
		return h.finish(StatusTimeout)
	}

	h.isSDHC = false
	status = h.withCS(func() Status {
		resp, s := h.sendCommand(sdwire.CMD58, 0, sdwire.CRCFiller)
		if s != StatusOK || !resp.IsZero() {
			return StatusError
		}
		ocr, s := h.readTrailingBytes(4)
		if s != StatusOK {
			return s
		}
		if ocr[0]&sdwire.CCSBit != 0 {
			h.isSDHC = true
		}
		return StatusOK
	})
	if status != StatusOK {
		h.warn("cmd58 failed, assuming SDSC")
	}

	if !h.isSDHC {
		status = h.withCS(func() Status {
			resp, s := h.sendCommand(sdwire.CMD16, BlockSize, sdwire.CRCFiller)
			if s != StatusOK {
				return s
			}
			if !resp.IsZero() {
				return StatusError
			}
			return StatusOK
		})
		if status != StatusOK {
			return h.finish(status)
		}
	}

	if csd, s := h.readCSD(); s == StatusOK {
		h.capacityBlocks = csd.CapacityBlocks()
	} else {
		h.capacityBlocks = 0
	}

	h.initialized = true
	h.info("sd card initialized",
		slog.Bool("sdhc", h.isSDHC),
		slog.Uint64("blocks", uint64(h.capacityBlocks)))
	return h.finish(StatusOK)
}

var errRetry = &statusOpError{Status: StatusTimeout, Op: "init retry"}

// initBackoff bounds a backoff.Retry loop by absolute deadline instead of
// elapsed duration, matching §4.C's "bounded by INIT_TIMEOUT_MS measured
// from the start of the loop" semantics, with a 1ms constant delay between
// attempts (original_source's SD_BackoffDelay).
func initBackoff(deadline time.Time) backoff.BackOff {
	return &deadlineBackoff{delay: time.Millisecond, deadline: deadline}
}

type deadlineBackoff struct {
	delay    time.Duration
	deadline time.Time
}

func (b *deadlineBackoff) NextBackOff() time.Duration {
	if time.Now().After(b.deadline) {
		return backoff.Stop
	}
	return b.delay
}

func (b *deadlineBackoff) Reset() {}

// finish records status as last_status and the stats outcome, then returns
// it, the shared tail of every public entry point (§3, §7).
func (h *Handle) finish(status Status) Status {
	h.lastStatus = status
	h.stats.recordOutcome(status)
	return status
}
