package sdspi

import (
	"log/slog"
	"time"

	"github.com/kpf5297/fatfs-sdcard-spi/sdwire"
)

// ReadBlocks reads count consecutive 512-byte blocks starting at sector into
// buff, dispatching to the single- or multi-block path per §4.D. A single
// block is retried up to MaxRetries times; a multi-block transfer is not
// retried as a whole — a mid-transfer failure stops the CMD18 session and
// returns the classified error.
func (h *Handle) ReadBlocks(buff []byte, sector, count uint32) Status {
	if count == 1 {
		return h.ReadSingleBlock(buff, sector)
	}
	return h.ReadMultiBlocks(buff, sector, count)
}

// WriteBlocks writes count consecutive 512-byte blocks starting at sector
// from buff, dispatching to the single- or multi-block path per §4.D.
func (h *Handle) WriteBlocks(buff []byte, sector, count uint32) Status {
	if count == 1 {
		return h.WriteSingleBlock(buff, sector)
	}
	return h.WriteMultiBlocks(buff, sector, count)
}

// ReadSingleBlock issues CMD17 for one block, retrying the whole
// select/command/data sequence up to MaxRetries times on failure (§4.D).
func (h *Handle) ReadSingleBlock(buff []byte, sector uint32) Status {
	if status := h.checkBufferShape(buff, 1); status != StatusOK {
		return h.finish(status)
	}
	release, status := h.acquire()
	if status != StatusOK {
		return h.finish(status)
	}
	defer release()
	if status := h.checkPresence(); status != StatusOK {
		return h.finish(status)
	}
	if !h.initialized {
		return h.finish(StatusError)
	}

	h.stats.ReadOps++
	h.stats.ReadBlocks++

	addr := h.blockAddress(sector)
	var last Status
	for attempt := 0; attempt <= h.cfg.MaxRetries; attempt++ {
		last = h.readSingleBlockOnce(buff, addr)
		if last == StatusOK {
			break
		}
		h.debug("read retry", slog.Uint64("sector", uint64(sector)), slog.Int("attempt", attempt), slog.String("status", last.String()))
		time.Sleep(time.Millisecond)
	}
	if last != StatusOK {
		h.logerr("read failed after retries", slog.Uint64("sector", uint64(sector)), slog.String("status", last.String()))
	}
	return h.finish(last)
}

func (h *Handle) readSingleBlockOnce(buff []byte, addr uint32) Status {
	return h.withCS(func() Status {
		r1, status := h.sendCommand(sdwire.CMD17, addr, sdwire.CRCFiller)
		if status != StatusOK || !r1.IsZero() {
			return StatusError
		}
		if status := h.waitDataToken(time.Now().Add(h.cfg.DataTokenTimeout)); status != StatusOK {
			return status
		}
		allowDMA := h.cfg.UseDMA && isAligned(buff, h.cfg.dmaAlignment())
		if status := h.transmitReceive(nil, buff, allowDMA); status != StatusOK {
			return status
		}
		var crc [2]byte
		h.transmitReceive(nil, crc[:], false)
		return StatusOK
	})
}

// ReadMultiBlocks issues CMD18 and reads count blocks back to back,
// terminating with CMD12 regardless of outcome (§4.D). Not retried as a
// whole: a mid-stream failure stops the loop and the error propagates.
func (h *Handle) ReadMultiBlocks(buff []byte, sector, count uint32) Status {
	if status := h.checkBufferShape(buff, count); status != StatusOK {
		return h.finish(status)
	}
	release, status := h.acquire()
	if status != StatusOK {
		return h.finish(status)
	}
	defer release()
	if status := h.checkPresence(); status != StatusOK {
		return h.finish(status)
	}
	if !h.initialized {
		return h.finish(StatusError)
	}

	h.stats.ReadOps++
	h.stats.ReadBlocks += count

	addr := h.blockAddress(sector)
	allowDMA := h.cfg.UseDMA && isAligned(buff, h.cfg.dmaAlignment())
	status = h.withCS(func() Status {
		r1, s := h.sendCommand(sdwire.CMD18, addr, sdwire.CRCFiller)
		if s != StatusOK || !r1.IsZero() {
			return StatusError
		}
		var last Status
		for i := uint32(0); i < count; i++ {
			if last = h.waitDataToken(time.Now().Add(h.cfg.DataTokenTimeout)); last != StatusOK {
				break
			}
			block := buff[i*BlockSize : (i+1)*BlockSize]
			if last = h.transmitReceive(nil, block, allowDMA); last != StatusOK {
				break
			}
			var crc [2]byte
			h.transmitReceive(nil, crc[:], false)
		}
		h.sendCommand(sdwire.CMD12, 0, sdwire.CRCFiller)
		return last
	})
	return h.finish(status)
}

// WriteSingleBlock issues CMD24 for one block, retrying the whole sequence
// up to MaxRetries times on failure (§4.D).
func (h *Handle) WriteSingleBlock(buff []byte, sector uint32) Status {
	if status := h.checkBufferShape(buff, 1); status != StatusOK {
		return h.finish(status)
	}
	release, status := h.acquire()
	if status != StatusOK {
		return h.finish(status)
	}
	defer release()
	if status := h.checkPresence(); status != StatusOK {
		return h.finish(status)
	}
	if !h.initialized {
		return h.finish(StatusError)
	}

	h.stats.WriteOps++
	h.stats.WriteBlocks++

	addr := h.blockAddress(sector)
	var last Status
	for attempt := 0; attempt <= h.cfg.MaxRetries; attempt++ {
		last = h.writeSingleBlockOnce(buff, addr)
		if last == StatusOK {
			break
		}
		h.debug("write retry", slog.Uint64("sector", uint64(sector)), slog.Int("attempt", attempt), slog.String("status", last.String()))
		time.Sleep(time.Millisecond)
	}
	if last != StatusOK {
		h.logerr("write failed after retries", slog.Uint64("sector", uint64(sector)), slog.String("status", last.String()))
	}
	return h.finish(last)
}

func (h *Handle) writeSingleBlockOnce(buff []byte, addr uint32) Status {
	return h.withCS(func() Status {
		r1, status := h.sendCommand(sdwire.CMD24, addr, sdwire.CRCFiller)
		if status != StatusOK || !r1.IsZero() {
			return StatusError
		}
		h.transmitByte(sdwire.TokenStartBlock)
		allowDMA := h.cfg.UseDMA && isAligned(buff, h.cfg.dmaAlignment())
		if status := h.transmit(buff, allowDMA); status != StatusOK {
			return status
		}
		h.transmitByte(0xFF)
		h.transmitByte(0xFF)

		resp, status := h.receiveByte(time.Time{})
		if status != StatusOK {
			return status
		}
		if resp&sdwire.DataRespMask != sdwire.DataRespAccepted {
			if resp&sdwire.DataRespMask == sdwire.DataRespCRCErr {
				return StatusCRCError
			}
			return StatusWriteError
		}
		return h.waitReady(time.Now().Add(h.cfg.WriteBusyTimeout))
	})
}

// WriteMultiBlocks issues CMD25 and writes count blocks back to back,
// terminating with the stop-transmission token and a final busy wait
// regardless of outcome (§4.D). Not retried as a whole.
func (h *Handle) WriteMultiBlocks(buff []byte, sector, count uint32) Status {
	if status := h.checkBufferShape(buff, count); status != StatusOK {
		return h.finish(status)
	}
	release, status := h.acquire()
	if status != StatusOK {
		return h.finish(status)
	}
	defer release()
	if status := h.checkPresence(); status != StatusOK {
		return h.finish(status)
	}
	if !h.initialized {
		return h.finish(StatusError)
	}

	h.stats.WriteOps++
	h.stats.WriteBlocks += count

	addr := h.blockAddress(sector)
	allowDMA := h.cfg.UseDMA && isAligned(buff, h.cfg.dmaAlignment())
	status = h.withCS(func() Status {
		r1, s := h.sendCommand(sdwire.CMD25, addr, sdwire.CRCFiller)
		if s != StatusOK || !r1.IsZero() {
			return StatusError
		}
		var last Status
		for i := uint32(0); i < count; i++ {
			h.transmitByte(sdwire.TokenStartMultiWrite)
			block := buff[i*BlockSize : (i+1)*BlockSize]
			if last = h.transmit(block, allowDMA); last != StatusOK {
				break
			}
			h.transmitByte(0xFF)
			h.transmitByte(0xFF)

			resp, rs := h.receiveByte(time.Time{})
			if rs != StatusOK {
				last = rs
				break
			}
			if resp&sdwire.DataRespMask != sdwire.DataRespAccepted {
				if resp&sdwire.DataRespMask == sdwire.DataRespCRCErr {
					last = StatusCRCError
				} else {
					last = StatusWriteError
				}
				break
			}
			if last = h.waitReady(time.Now().Add(h.cfg.WriteBusyTimeout)); last != StatusOK {
				break
			}
		}
		h.transmitByte(sdwire.TokenStopTran)
		h.waitReady(time.Now().Add(h.cfg.WriteBusyTimeout))
		return last
	})
	return h.finish(status)
}

// Sync waits for the card to clear its busy signal, the SPI-mode stand-in
// for a host-side flush (§4.D, original_source's SD_Sync): there is no
// write-back cache to flush, only the card's own internal busy state. Like
// every read/write, it first checks card presence (§4.D: "every read,
// write, and sync first checks card-presence"); absence clears initialized
// and reports NO_MEDIA.
func (h *Handle) Sync() Status {
	release, status := h.acquire()
	if status != StatusOK {
		return h.finish(status)
	}
	defer release()
	if status := h.checkPresence(); status != StatusOK {
		return h.finish(status)
	}
	if !h.initialized {
		return h.finish(StatusError)
	}
	status = h.withCS(func() Status {
		return h.waitReady(time.Now().Add(h.cfg.WriteBusyTimeout))
	})
	return h.finish(status)
}

// checkBufferShape validates buff/count against BlockSize. Pure parameter
// validation only — it touches no Handle state, so callers may run it
// before acquire (§5: state is only ever mutated under the lock, except by
// DMA completion ISRs). Presence is checked separately, under the lock, by
// checkPresence.
func (h *Handle) checkBufferShape(buff []byte, count uint32) Status {
	if buff == nil {
		h.debug("rejecting request", slog.Any("err", ErrNilBuffer))
		return StatusParam
	}
	if count == 0 {
		return StatusParam
	}
	if uint32(len(buff)) < count*BlockSize {
		return StatusParam
	}
	return StatusOK
}
