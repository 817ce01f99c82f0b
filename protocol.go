package sdspi

import (
	"time"

	"github.com/kpf5297/fatfs-sdcard-spi/sdwire"
)

// waitReady polls receiveByte until it returns 0xFF or deadline elapses,
// backing off ~1ms between attempts, per §4.B.
func (h *Handle) waitReady(deadline time.Time) Status {
	return h.pollByte(deadline, 0xFF)
}

// waitDataToken polls receiveByte until it returns the start-block token or
// deadline elapses, per §4.B.
func (h *Handle) waitDataToken(deadline time.Time) Status {
	return h.pollByte(deadline, sdwire.TokenStartBlock)
}

func (h *Handle) pollByte(deadline time.Time, want byte) Status {
	for {
		got, status := h.receiveByte(deadline)
		if status == StatusTimeout {
			return StatusTimeout
		}
		if status != StatusOK {
			return StatusError
		}
		if got == want {
			return StatusOK
		}
		if time.Now().After(deadline) {
			return StatusTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

// sendCommand frames and sends one SD-SPI command packet and returns its R1
// response, per §4.B: wait for ready, one dummy 0xFF, the 6-byte packet,
// then poll up to 10 times for a response byte with MSB clear. Must be
// called with CS already asserted.
func (h *Handle) sendCommand(cmd uint8, arg uint32, crc uint8) (sdwire.R1, Status) {
	if status := h.waitReady(time.Now().Add(h.cfg.CmdTimeout)); status != StatusOK {
		return 0, status
	}
	if status := h.transmitByte(0xFF); status != StatusOK {
		return 0, status
	}
	pkt := sdwire.CmdPacket(cmd, arg, crc)
	if status := h.transmit(pkt[:], false); status != StatusOK {
		return 0, status
	}
	for i := 0; i < 10; i++ {
		resp, status := h.receiveByte(time.Time{})
		if status != StatusOK {
			return 0, StatusError
		}
		if sdwire.R1(resp).Valid() {
			return sdwire.R1(resp), StatusOK
		}
	}
	return 0, StatusTimeout
}

// appCommand sends CMD55 followed by the given ACMD, per §4.C step 4.
func (h *Handle) appCommand(acmd uint8, arg uint32) (sdwire.R1, Status) {
	if _, status := h.sendCommand(sdwire.CMD55, 0, sdwire.CRCFiller); status != StatusOK {
		return 0, status
	}
	return h.sendCommand(acmd, arg, sdwire.CRCFiller)
}

// readTrailingBytes reads n bytes immediately following an R1 response, for
// CMD8's R7 and CMD58's R3 payloads (§4.B).
func (h *Handle) readTrailingBytes(n int) ([]byte, Status) {
	buf := make([]byte, n)
	for i := range buf {
		b, status := h.receiveByte(time.Time{})
		if status != StatusOK {
			return nil, status
		}
		buf[i] = b
	}
	return buf, StatusOK
}

// readCSD issues CMD9 and reads the 16-byte CSD register plus its 2 CRC
// filler bytes, per §4.B/§4.C step 7. Must be called with the handle locked
// but CS deasserted (it brackets its own CS).
func (h *Handle) readCSD() (sdwire.CSD, Status) {
	var csd sdwire.CSD
	status := h.withCS(func() Status {
		r1, status := h.sendCommand(sdwire.CMD9, 0, sdwire.CRCFiller)
		if status != StatusOK {
			return status
		}
		if !r1.IsZero() {
			return StatusError
		}
		if status := h.waitDataToken(time.Now().Add(h.cfg.DataTokenTimeout)); status != StatusOK {
			return status
		}
		if status := h.transmitReceive(nil, csd[:], false); status != StatusOK {
			return status
		}
		var crc [2]byte
		h.transmitReceive(nil, crc[:], false)
		return StatusOK
	})
	return csd, status
}
