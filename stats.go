package sdspi

// Stats is a snapshot of the driver's monotonic counters (§3). All fields
// are only ever incremented under the handle's mutex, so a snapshot never
// observes a torn update.
type Stats struct {
	ReadOps      uint32
	WriteOps     uint32
	ReadBlocks   uint32
	WriteBlocks  uint32
	InitAttempts uint32
	ErrorCount   uint32
	TimeoutCount uint32
}

// recordOutcome folds a terminal status into the statistics, per §4.D: any
// non-OK status counts as an error, and TIMEOUT additionally counts as a
// timeout. Must be called with the handle locked.
func (s *Stats) recordOutcome(status Status) {
	if status != StatusOK {
		s.ErrorCount++
	}
	if status == StatusTimeout {
		s.TimeoutCount++
	}
}

// Stats returns a copy of the handle's current statistics.
func (h *Handle) Stats() Stats {
	h.mu.lock(h.cfg.MutexTimeout)
	defer h.mu.unlock()
	return h.stats
}

// ResetStats zeroes the handle's statistics counters.
func (h *Handle) ResetStats() {
	h.mu.lock(h.cfg.MutexTimeout)
	defer h.mu.unlock()
	h.stats = Stats{}
}
