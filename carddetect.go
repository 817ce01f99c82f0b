package sdspi

// CardDetect reads an optional card-presence GPIO input. ActiveLow selects
// the polarity of "card present" (§3, §4.D's presence gate). Only polled
// presence is supported — hot-plug event delivery is a non-goal (§1).
type CardDetect struct {
	Read      func() bool
	ActiveLow bool
}

// present reports card presence, always true when no CardDetect is wired.
func (h *Handle) present() bool {
	cd := h.cfg.CardDetect
	if cd == nil || cd.Read == nil {
		return true
	}
	state := cd.Read()
	if cd.ActiveLow {
		return !state
	}
	return state
}

// checkPresence implements the presence gate of §4.D: absence clears
// initialized and classifies as NO_MEDIA so the next successful path must
// go through initialization again (§7's "NO_MEDIA uniquely also clears
// initialized").
func (h *Handle) checkPresence() Status {
	if h.present() {
		return StatusOK
	}
	h.initialized = false
	return StatusNoMedia
}
