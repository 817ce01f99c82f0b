//go:build tinygo

package sdspi

import "tinygo.org/x/drivers"

// HardwareSPI adapts a tinygo.org/x/drivers.SPI (a board's real hardware SPI
// peripheral) directly to Peripheral; the method shapes already match.
type HardwareSPI struct {
	Bus drivers.SPI
}

func (h HardwareSPI) Tx(w, r []byte) error {
	return h.Bus.Tx(w, r)
}
