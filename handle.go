package sdspi

import "sync/atomic"

// Handle is the SD card handle (§3): transport binding, policy, discovered
// state, concurrency resources and statistics, created once by the host and
// thereafter referred to by reference.
type Handle struct {
	cfg Config

	mu timeoutMutex

	// Discovered state.
	initialized    bool
	isSDHC         bool
	capacityBlocks uint32
	lastStatus     Status

	// DMA rendezvous resources (§5): two binary signals for the RTOS path,
	// two volatile flags for the non-RTOS fallback.
	dmaTxDone chan struct{}
	dmaRxDone chan struct{}
	dmaTxFlag   atomic.Bool
	dmaRxFlag   atomic.Bool
	dmaInFlight atomic.Bool

	stats Stats
}

// New constructs a handle from its binding and policy (§3's lifecycle:
// "constructed once (binding + zeroed state)"). The card is not yet
// initialized; call Init before any I/O. New registers the handle as the
// current DMA ISR owner (§3, §9) if cfg.DMA is non-nil.
func New(cfg Config) *Handle {
	cfg.setDefaults()
	h := &Handle{
		cfg:       cfg,
		mu:        newTimeoutMutex(),
		dmaTxDone: make(chan struct{}, 1),
		dmaRxDone: make(chan struct{}, 1),
	}
	if h.cfg.CS != nil {
		h.cfg.CS(false) // CS deasserted whenever the mutex is not held (§3).
	}
	if cfg.DMA != nil {
		dmaOwner.Store(h)
	}
	return h
}

// SetCardDetect wires an optional card-detect input after construction,
// mirroring original_source's separate SD_SetCardDetect entry point.
func (h *Handle) SetCardDetect(cd *CardDetect) {
	h.mu.lock(h.cfg.MutexTimeout)
	defer h.mu.unlock()
	h.cfg.CardDetect = cd
}

// Close releases concurrency resources and clears initialized (§3's
// teardown operation), clearing the DMA ISR owner pointer if this handle
// currently holds it.
func (h *Handle) Close() {
	h.mu.lock(h.cfg.MutexTimeout)
	defer h.mu.unlock()
	h.initialized = false
	if dmaOwner.Load() == h {
		dmaOwner.Store(nil)
	}
}

// IsSDHC reports whether the card negotiated block (SDHC/SDXC) addressing.
func (h *Handle) IsSDHC() bool {
	h.mu.lock(h.cfg.MutexTimeout)
	defer h.mu.unlock()
	return h.isSDHC
}

// IsInitialized reports the handle's current initialized state.
func (h *Handle) IsInitialized() bool {
	h.mu.lock(h.cfg.MutexTimeout)
	defer h.mu.unlock()
	return h.initialized
}

// Present reports current card presence (§4.D), always true when no
// CardDetect is wired. Unlike checkPresence, it only reads the presence
// input and never mutates initialized — callers that need the
// presence-gate side effect (clearing initialized on absence) should go
// through a normal entry point (Init, a read/write, or Sync) instead.
func (h *Handle) Present() bool {
	h.mu.lock(h.cfg.MutexTimeout)
	defer h.mu.unlock()
	return h.present()
}

// BlockCount returns the card capacity in 512-byte blocks, or 0 if unknown
// (CSD didn't parse, or Init has never reached the CSD read). The value is
// kept after Close or a NO_MEDIA outcome clears initialized.
func (h *Handle) BlockCount() uint32 {
	h.mu.lock(h.cfg.MutexTimeout)
	defer h.mu.unlock()
	return h.capacityBlocks
}

// LastStatus returns the most recently recorded operation outcome (§3).
func (h *Handle) LastStatus() Status {
	h.mu.lock(h.cfg.MutexTimeout)
	defer h.mu.unlock()
	return h.lastStatus
}

// blockAddress translates a sector number to the address sent on the wire:
// sector-addressed for SDHC/SDXC, byte-addressed for SDSC (§4.D, §6.3).
func (h *Handle) blockAddress(sector uint32) uint32 {
	if h.isSDHC {
		return sector
	}
	return sector * BlockSize
}
