// Package fakecard simulates an SD card's SPI-mode command/response/data
// behavior in memory, standing in for real hardware in tests and the
// sdbench demo. It implements sdspi.Peripheral directly: the driver talks
// to it exactly as it would talk to a real card's SPI shift register.
package fakecard

import "github.com/kpf5297/fatfs-sdcard-spi/sdwire"

const blockSize = 512

// writeOp tracks which command is consuming the raw (non-command-framed)
// bytes currently arriving, so the command assembler knows not to scan
// payload bytes for a false command start.
type writeOp uint8

const (
	opNone writeOp = iota
	opSingleWrite
	opMultiWriteBlock
)

// Card is a minimal software SD card: it understands the command subset
// this driver issues (CMD0/8/9/12/16/17/18/24/25, CMD55+ACMD41, CMD58) and
// keeps its storage in a flat byte slice indexed by block.
type Card struct {
	SDHC    bool
	Blocks  uint32
	Storage []byte // Blocks * 512 bytes

	idleRounds int
	frame      []byte
	resp       []byte

	rawSkip int // bytes left to pass through verbatim (no frame scanning)
	op      writeOp
	writeAt uint32
	dataBuf []byte // accumulates the current write payload during rawSkip

	multiRead    bool
	readNextAddr uint32
}

// NewCard allocates a zeroed card of the given block count.
func NewCard(blocks uint32, sdhc bool) *Card {
	return &Card{
		SDHC:       sdhc,
		Blocks:     blocks,
		Storage:    make([]byte, blocks*blockSize),
		idleRounds: 2,
	}
}

// Tx implements sdspi.Peripheral.
func (c *Card) Tx(w, r []byte) error {
	n := len(w)
	if n == 0 {
		n = len(r)
	}
	for i := 0; i < n; i++ {
		in := byte(0xFF)
		if w != nil {
			in = w[i]
		}
		out := c.next(in)
		if r != nil {
			r[i] = out
		}
	}
	return nil
}

func (c *Card) next(in byte) byte {
	if c.rawSkip > 0 {
		// The command's R1 goes out first; the raw payload starts after it.
		if resp, ok := c.tryResp(); ok {
			return resp
		}
		c.dataBuf = append(c.dataBuf, in)
		c.rawSkip--
		if c.rawSkip == 0 {
			c.finishWrite()
		}
		// The data response queued by finishWrite goes out on the next byte.
		return 0xFF
	}
	if resp, ok := c.tryResp(); ok {
		return resp
	}
	if c.multiRead && in == 0xFF {
		c.queueNextReadBlock()
		return c.popResp()
	}
	if c.op == opMultiWriteBlock && in == sdwire.TokenStartMultiWrite {
		c.dataBuf = []byte{in}
		c.rawSkip = blockSize + 2
		return 0xFF
	}
	c.frame = append(c.frame, in)
	if len(c.frame) == 1 && c.frame[0]&0xC0 != 0x40 {
		c.frame = c.frame[:0]
		return 0xFF
	}
	if len(c.frame) < 6 {
		return 0xFF
	}
	frame := c.frame
	c.frame = nil
	c.handleCommand(frame)
	return 0xFF
}

func (c *Card) tryResp() (byte, bool) {
	if len(c.resp) == 0 {
		return 0, false
	}
	out := c.resp[0]
	c.resp = c.resp[1:]
	return out, true
}

func (c *Card) popResp() byte {
	if b, ok := c.tryResp(); ok {
		return b
	}
	return 0xFF
}

// finishWrite stores a completed single- or multi-write block and queues
// the data-response byte, per §4.B/§6.2: 0x05 (accepted) for every write
// this simulator ever rejects none of.
func (c *Card) finishWrite() {
	switch c.op {
	case opSingleWrite:
		payload := c.dataBuf[1:] // dataBuf[0] was the start-block token
		c.storeBlock(c.writeAt, payload)
		c.resp = append(c.resp, sdwire.DataRespAccepted)
		c.op = opNone
	case opMultiWriteBlock:
		payload := c.dataBuf[1:]
		c.storeBlock(c.writeAt, payload)
		c.writeAt += blockSize
		c.resp = append(c.resp, sdwire.DataRespAccepted)
	}
	c.dataBuf = nil
}

func (c *Card) storeBlock(byteAddr uint32, payload []byte) {
	if int(byteAddr)+blockSize <= len(c.Storage) && len(payload) >= blockSize {
		copy(c.Storage[byteAddr:byteAddr+blockSize], payload[:blockSize])
	}
}

func (c *Card) handleCommand(frame []byte) {
	cmd := frame[0] &^ 0x40
	arg := uint32(frame[1])<<24 | uint32(frame[2])<<16 | uint32(frame[3])<<8 | uint32(frame[4])

	switch cmd {
	case sdwire.CMD0:
		c.resp = []byte{0x01}
	case sdwire.CMD8:
		c.resp = []byte{0x01, 0x00, 0x00, 0x01, 0xAA}
	case sdwire.CMD55:
		c.resp = []byte{0x01}
	case sdwire.ACMD41:
		if c.idleRounds > 0 {
			c.idleRounds--
			c.resp = []byte{0x01}
		} else {
			c.resp = []byte{0x00}
		}
	case sdwire.CMD58:
		var ocr byte
		if c.SDHC {
			ocr = sdwire.CCSBit
		}
		c.resp = []byte{0x00, ocr, 0x00, 0x00, 0x00}
	case sdwire.CMD16:
		c.resp = []byte{0x00}
	case sdwire.CMD9:
		csd := c.encodeCSD()
		resp := []byte{0x00, sdwire.TokenStartBlock}
		resp = append(resp, csd[:]...)
		resp = append(resp, 0xFF, 0xFF)
		c.resp = resp
	case sdwire.CMD17:
		addr := c.blockAddr(arg)
		resp := []byte{0x00, sdwire.TokenStartBlock}
		resp = append(resp, c.readBlock(addr)...)
		resp = append(resp, 0xFF, 0xFF)
		c.resp = resp
	case sdwire.CMD18:
		c.resp = []byte{0x00, sdwire.TokenStartBlock}
		c.resp = append(c.resp, c.readBlock(c.blockAddr(arg))...)
		c.resp = append(c.resp, 0xFF, 0xFF)
		c.readNextAddr = c.blockAddr(arg) + blockSize
		c.multiRead = true
	case sdwire.CMD12:
		c.multiRead = false
		c.resp = []byte{0x00}
	case sdwire.CMD24:
		c.resp = []byte{0x00}
		c.op = opSingleWrite
		c.writeAt = c.blockAddr(arg)
		c.rawSkip = 1 + blockSize + 2 // start token + payload + dummy CRC
	case sdwire.CMD25:
		c.resp = []byte{0x00}
		c.op = opMultiWriteBlock
		c.writeAt = c.blockAddr(arg)
		c.rawSkip = 1 + blockSize + 2
	default:
		c.resp = []byte{0x05}
	}
}

// queueNextReadBlock streams the next block of an active CMD18 session,
// invoked reactively as the host polls for each block's data token — the
// card has no notion of how many blocks the host intends to read, only
// that it keeps streaming until CMD12 arrives.
func (c *Card) queueNextReadBlock() {
	resp := []byte{sdwire.TokenStartBlock}
	resp = append(resp, c.readBlock(c.readNextAddr)...)
	resp = append(resp, 0xFF, 0xFF)
	c.resp = resp
	c.readNextAddr += blockSize
}

func (c *Card) blockAddr(arg uint32) uint32 {
	if c.SDHC {
		return arg * blockSize
	}
	return arg
}

func (c *Card) readBlock(byteAddr uint32) []byte {
	buf := make([]byte, blockSize)
	if int(byteAddr)+blockSize <= len(c.Storage) {
		copy(buf, c.Storage[byteAddr:byteAddr+blockSize])
	}
	return buf
}

// encodeCSD builds a CSD v2 (SDHC) or v1 (SDSC) register encoding Blocks,
// inverse of sdwire.CSD.CapacityBlocks when Blocks is a multiple of 1024
// (SDHC) or 512 (SDSC). Other sizes are rounded down to that unit, and a
// card smaller than one unit encodes a capacity that does not decode back
// to Blocks (an SDHC card under 1024 blocks decodes as 0).
func (c *Card) encodeCSD() sdwire.CSD {
	var csd sdwire.CSD
	if c.SDHC {
		csd[0] = 1 << 6
		cSize := c.Blocks/1024 - 1
		csd[7] = byte(cSize >> 16 & 0x3F)
		csd[8] = byte(cSize >> 8)
		csd[9] = byte(cSize)
		return csd
	}
	csd[0] = 0
	csd[5] = 9 // READ_BL_LEN = 9 -> 512-byte blocks
	const mult = 1 << 9
	cSize := c.Blocks/mult - 1
	csd[6] = byte(cSize >> 10 & 0x03)
	csd[7] = byte(cSize >> 2)
	csd[8] = byte(cSize<<6) & 0xC0
	csd[9] = 0x03 // C_SIZE_MULT = 7 -> mult = 1<<(7+2)
	csd[10] = 0x80
	return csd
}
