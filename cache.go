package sdspi

// CacheController performs data-cache maintenance around DMA buffers on
// boards with a data cache (§4.A). Implementations round the given range
// out to cache-line boundaries themselves or rely on the caller having
// already done so via alignRange; this package does the rounding before
// calling either method, matching original_source's SD_CacheClean /
// SD_CacheInvalidate, which round to SD_DMA_ALIGNMENT before calling the
// SCB cache-maintenance intrinsics.
type CacheController interface {
	// CleanRange writes dirty cache lines covering [addr, addr+n) back to
	// memory, making CPU writes visible to a DMA engine reading from them.
	CleanRange(addr uintptr, n int)
	// InvalidateRange discards cache lines covering [addr, addr+n), making
	// memory written by a DMA engine visible to subsequent CPU reads.
	InvalidateRange(addr uintptr, n int)
}

// alignRange rounds [addr, addr+n) out to the nearest enclosing multiple of
// alignment, as original_source's SD_CacheClean/SD_CacheInvalidate do before
// calling into the SCB intrinsics.
func alignRange(addr uintptr, n int, alignment uint32) (start uintptr, length int) {
	a := uintptr(alignment)
	start = addr &^ (a - 1)
	end := align(addr+uintptr(n), a)
	return start, int(end - start)
}

// cleanForDMA cleans the cache lines backing buf before a DMA transmit, a
// no-op when the handle has no CacheController (§4.A: "when a data cache
// exists").
func (h *Handle) cleanForDMA(buf []byte) {
	if h.cfg.Cache == nil || len(buf) == 0 {
		return
	}
	addr := bufAddr(buf)
	start, n := alignRange(addr, len(buf), h.cfg.dmaAlignment())
	h.cfg.Cache.CleanRange(start, n)
}

// invalidateForDMA invalidates the cache lines backing buf, called both
// before and after a DMA receive per §4.A.
func (h *Handle) invalidateForDMA(buf []byte) {
	if h.cfg.Cache == nil || len(buf) == 0 {
		return
	}
	addr := bufAddr(buf)
	start, n := alignRange(addr, len(buf), h.cfg.dmaAlignment())
	h.cfg.Cache.InvalidateRange(start, n)
}
