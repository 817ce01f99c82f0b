// Package diskio bridges an *sdspi.Handle to FatFs's five-operation block
// device contract (status/initialize/read/write/ioctl), the pure-Go
// equivalent of original_source's sd_diskio_spi.c glue. Unlike a cgo FatFs
// binding (see the other_examples registry this is adapted from) there is
// no C callback boundary to cross: Driver is a plain Go type whose methods a
// host FatFs port or test harness calls directly.
package diskio

import (
	"github.com/kpf5297/fatfs-sdcard-spi"
)

// DriveStatus mirrors FatFs's DSTATUS bitmask.
type DriveStatus uint8

const (
	StatusNoInit  DriveStatus = 1 << 0
	StatusNoDisk  DriveStatus = 1 << 1
	StatusProtect DriveStatus = 1 << 2
)

// Result mirrors FatFs's DRESULT enum.
type Result uint8

const (
	ResultOK Result = iota
	ResultError
	ResultWriteProtected
	ResultNotReady
	ResultParamError
)

// IoctlCmd mirrors the subset of FatFs's ioctl command codes this driver
// answers (§7.1): CTRL_SYNC, GET_SECTOR_SIZE, GET_SECTOR_COUNT, GET_BLOCK_SIZE.
type IoctlCmd uint8

const (
	CtrlSync IoctlCmd = iota
	GetSectorSize
	GetSectorCount
	GetBlockSize
)

// Driver adapts a single *sdspi.Handle to drive number 0, matching
// original_source's single-global-handle, single-drive design (§7.1).
// Any other drive number is rejected with ResultParamError/StatusNoInit.
type Driver struct {
	Handle *sdspi.Handle
}

// NewDriver wraps h as a FatFs-shaped block device.
func NewDriver(h *sdspi.Handle) *Driver {
	return &Driver{Handle: h}
}

// checkDrive reports sdspi.ErrBadDriveNumber for anything but drive 0,
// matching original_source's single-global-handle, drive-0-only gate.
func (d *Driver) checkDrive(drv uint8) error {
	if drv != 0 {
		return sdspi.ErrBadDriveNumber
	}
	return nil
}

// Status reports the drive's DSTATUS, derived from presence and
// initialized (§6.1), matching original_source's SD_disk_status: absence
// reports STA_NODISK|STA_NOINIT before initialized is even considered.
func (d *Driver) Status(drv uint8) DriveStatus {
	if d.checkDrive(drv) != nil {
		return StatusNoInit
	}
	if !d.Handle.Present() {
		return StatusNoDisk | StatusNoInit
	}
	if !d.Handle.IsInitialized() {
		return StatusNoInit
	}
	return 0
}

// Initialize runs Init on the bound handle and reports the resulting DSTATUS.
func (d *Driver) Initialize(drv uint8) DriveStatus {
	if d.checkDrive(drv) != nil {
		return StatusNoInit
	}
	if status := d.Handle.Init(); status == sdspi.StatusNoMedia {
		return StatusNoDisk | StatusNoInit
	} else if status != sdspi.StatusOK {
		return StatusNoInit
	}
	return 0
}

// Read reads count sectors starting at sector into buff.
func (d *Driver) Read(drv uint8, buff []byte, sector uint32, count uint32) Result {
	if d.checkDrive(drv) != nil || count == 0 || buff == nil {
		return ResultParamError
	}
	if !d.Handle.IsInitialized() {
		return ResultNotReady
	}
	return fromStatus(d.Handle.ReadBlocks(buff, sector, count))
}

// Write writes count sectors starting at sector from buff.
func (d *Driver) Write(drv uint8, buff []byte, sector uint32, count uint32) Result {
	if d.checkDrive(drv) != nil || count == 0 || buff == nil {
		return ResultParamError
	}
	if !d.Handle.IsInitialized() {
		return ResultNotReady
	}
	return fromStatus(d.Handle.WriteBlocks(buff, sector, count))
}

// Ioctl answers the control codes FatFs issues outside of read/write.
func (d *Driver) Ioctl(drv uint8, cmd IoctlCmd, out *uint32) Result {
	if d.checkDrive(drv) != nil {
		return ResultParamError
	}
	switch cmd {
	case CtrlSync:
		if d.Handle.Sync() != sdspi.StatusOK {
			return ResultError
		}
		return ResultOK
	case GetSectorSize:
		if out == nil {
			return ResultParamError
		}
		*out = sdspi.BlockSize
		return ResultOK
	case GetSectorCount:
		if out == nil {
			return ResultParamError
		}
		*out = d.Handle.BlockCount()
		if *out == 0 {
			return ResultError
		}
		return ResultOK
	case GetBlockSize:
		if out == nil {
			return ResultParamError
		}
		*out = 1
		return ResultOK
	default:
		return ResultParamError
	}
}

// fromStatus maps an sdspi.Status to a FatFs DRESULT, per §7.1: NO_MEDIA and
// BUSY both read as "try again later" (RES_NOTRDY), everything else
// non-OK collapses to RES_ERROR.
func fromStatus(status sdspi.Status) Result {
	switch status {
	case sdspi.StatusOK:
		return ResultOK
	case sdspi.StatusNoMedia, sdspi.StatusBusy:
		return ResultNotReady
	default:
		return ResultError
	}
}
