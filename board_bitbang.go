//go:build tinygo

package sdspi

import (
	"device"
	"machine"
)

// BitbangSPI is a bit-banged mode-0 SPI peripheral for boards without a
// hardware SPI block free for the card, adapted from cyw43439's SPIbb
// (bbspi.go) to satisfy this package's Peripheral interface instead of
// tinygo.org/x/drivers.SPI's Transfer method.
type BitbangSPI struct {
	SCK, SDI, SDO machine.Pin
	Delay         uint32
}

// Configure sets up SCK/SDO as outputs and SDI as an input, all idle low.
func (s *BitbangSPI) Configure() {
	s.SCK.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s.SDO.Configure(machine.PinConfig{Mode: machine.PinOutput})
	if s.SDI != s.SDO {
		s.SDI.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	}
	s.SCK.Low()
	s.SDO.Low()
	if s.Delay == 0 {
		s.Delay = 1
	}
}

// Tx exchanges len(w) (or len(r)) bytes full-duplex, matching Peripheral.
func (s *BitbangSPI) Tx(w, r []byte) error {
	n := len(w)
	if n == 0 {
		n = len(r)
	}
	for i := 0; i < n; i++ {
		var out byte
		if w != nil {
			out = w[i]
		} else {
			out = 0xFF
		}
		in := s.transferByte(out)
		if r != nil {
			r[i] = in
		}
	}
	return nil
}

//go:inline
func (s *BitbangSPI) transferByte(b byte) (out byte) {
	for bit := 7; bit >= 0; bit-- {
		out |= bitOf(s.transferBit(b&(1<<uint(bit)) != 0)) << uint(bit)
	}
	return out
}

//go:inline
func (s *BitbangSPI) transferBit(b bool) bool {
	s.SDO.Set(b)
	s.delay()
	s.SCK.High()
	s.delay()
	in := s.SDI.Get()
	s.SCK.Low()
	s.delay()
	return in
}

//go:inline
func (s *BitbangSPI) delay() {
	for i := uint32(0); i < s.Delay; i++ {
		device.Asm("nop")
	}
}

func bitOf(b bool) byte {
	if b {
		return 1
	}
	return 0
}
