package sdspi

import (
	"log/slog"
	"time"
)

// Default configuration constants (§6.4), overridable per-handle via Config.
const (
	BlockSize = 512 // fixed logical block size; never overridable

	DefaultSPIIOTimeout     = 50 * time.Millisecond
	DefaultCmdTimeout       = 100 * time.Millisecond
	DefaultDataTokenTimeout = 200 * time.Millisecond
	DefaultWriteBusyTimeout = 500 * time.Millisecond
	DefaultInitTimeout      = 1000 * time.Millisecond
	DefaultDMATimeout       = 500 * time.Millisecond
	DefaultMutexTimeout     = 1000 * time.Millisecond
	DefaultMaxRetries       = 2

	// DMA_ALIGNMENT: 32 bytes when a data cache is present, else 4. Config
	// picks the right default once a CacheController is (not) supplied;
	// see Config.dmaAlignment.
	alignmentWithCache    = 32
	alignmentWithoutCache = 4
)

// Config bundles the hardware bindings and tunables a Handle needs. Only
// Bus and CS are required; everything else has a spec-conformant default.
type Config struct {
	// Bus is the platform SPI peripheral binding (component A's polled path).
	Bus Peripheral
	// CS asserts (true) or deasserts (false) chip-select. Active-low wiring
	// is the caller's responsibility, same as cyrw's outputPin convention.
	CS OutputPin
	// CardDetect is optional; nil means presence is always assumed true.
	CardDetect *CardDetect
	// DMA is optional; nil means DMA is never used regardless of UseDMA.
	DMA DMAEngine
	// Cache is optional; nil means no cache maintenance is performed and
	// the DMA alignment requirement relaxes to 4 bytes.
	Cache CacheController
	// UseDMA is the use_dma policy flag (§3). Has no effect if DMA is nil.
	UseDMA bool
	// RTOSEnabled selects the DMA completion rendezvous: blocking take on a
	// binary signal (true) vs polling a volatile flag with a backoff delay
	// (false). See §5 / dma.go.
	RTOSEnabled bool

	SPIIOTimeout     time.Duration
	CmdTimeout       time.Duration
	DataTokenTimeout time.Duration
	WriteBusyTimeout time.Duration
	InitTimeout      time.Duration
	DMATimeout       time.Duration
	MutexTimeout     time.Duration
	MaxRetries       int

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.SPIIOTimeout == 0 {
		c.SPIIOTimeout = DefaultSPIIOTimeout
	}
	if c.CmdTimeout == 0 {
		c.CmdTimeout = DefaultCmdTimeout
	}
	if c.DataTokenTimeout == 0 {
		c.DataTokenTimeout = DefaultDataTokenTimeout
	}
	if c.WriteBusyTimeout == 0 {
		c.WriteBusyTimeout = DefaultWriteBusyTimeout
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = DefaultInitTimeout
	}
	if c.DMATimeout == 0 {
		c.DMATimeout = DefaultDMATimeout
	}
	if c.MutexTimeout == 0 {
		c.MutexTimeout = DefaultMutexTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// dmaAlignment is the DMA_ALIGNMENT policy of §4.A: 32 bytes when a data
// cache is present, else 4.
func (c *Config) dmaAlignment() uint32 {
	if c.Cache != nil {
		return alignmentWithCache
	}
	return alignmentWithoutCache
}
