package sdspi

import "errors"

var (
	ErrNoBus           = errors.New("sdspi: no SPI peripheral bound")
	ErrNoCS            = errors.New("sdspi: no chip-select pin bound")
	ErrBadDriveNumber  = errors.New("sdspi: drive number out of range")
	ErrNilBuffer       = errors.New("sdspi: nil buffer")
	ErrAlreadyRunning  = errors.New("sdspi: DMA transaction already in flight")
)

// errjoin returns an error that wraps the given errors, discarding nils, and
// returns nil if every value is nil. Kept as a small hand-rolled helper
// (rather than the stdlib errors.Join) for the transport's polled-transfer
// and DMA-issue failure logs, where the caller holds one contextual error
// and one bus error.
func errjoin(errs ...error) error {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	if n == 0 {
		return nil
	}
	e := &joinError{errs: make([]error, 0, n)}
	for _, err := range errs {
		if err != nil {
			e.errs = append(e.errs, err)
		}
	}
	return e
}

type joinError struct {
	errs []error
}

func (e *joinError) Error() string {
	var b []byte
	for i, err := range e.errs {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, err.Error()...)
	}
	return string(b)
}

func (e *joinError) Unwrap() []error { return e.errs }
