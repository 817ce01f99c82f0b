package diskio_test

import (
	"bytes"
	"testing"

	sdspi "github.com/kpf5297/fatfs-sdcard-spi"
	"github.com/kpf5297/fatfs-sdcard-spi/diskio"
	"github.com/kpf5297/fatfs-sdcard-spi/internal/fakecard"
)

func TestDriverLifecycle(t *testing.T) {
	card := fakecard.NewCard(64, true)
	h := sdspi.New(sdspi.Config{Bus: card, CS: func(bool) {}})
	drv := diskio.NewDriver(h)

	if st := drv.Status(0); st&diskio.StatusNoInit == 0 {
		t.Fatal("expected STA_NOINIT before Initialize")
	}
	if st := drv.Initialize(0); st != 0 {
		t.Fatalf("Initialize() = %d, want 0", st)
	}
	if st := drv.Status(0); st != 0 {
		t.Fatalf("Status() after init = %d, want 0", st)
	}

	want := bytes.Repeat([]byte{0xAB}, sdspi.BlockSize)
	if res := drv.Write(0, want, 5, 1); res != diskio.ResultOK {
		t.Fatalf("Write() = %v", res)
	}
	got := make([]byte, sdspi.BlockSize)
	if res := drv.Read(0, got, 5, 1); res != diskio.ResultOK {
		t.Fatalf("Read() = %v", res)
	}
	if !bytes.Equal(want, got) {
		t.Fatal("read back mismatch")
	}

	var sectorSize uint32
	if res := drv.Ioctl(0, diskio.GetSectorSize, &sectorSize); res != diskio.ResultOK || sectorSize != sdspi.BlockSize {
		t.Fatalf("Ioctl(GetSectorSize) = %v, %d", res, sectorSize)
	}
	if res := drv.Ioctl(0, diskio.CtrlSync, nil); res != diskio.ResultOK {
		t.Fatalf("Ioctl(CtrlSync) = %v", res)
	}
}

func TestDriverStatusReportsNoDisk(t *testing.T) {
	card := fakecard.NewCard(64, true)
	present := true
	h := sdspi.New(sdspi.Config{
		Bus: card,
		CS:  func(bool) {},
		CardDetect: &sdspi.CardDetect{
			Read: func() bool { return present },
		},
	})
	drv := diskio.NewDriver(h)
	if st := drv.Initialize(0); st != 0 {
		t.Fatalf("Initialize() = %d, want 0", st)
	}

	present = false
	if st := drv.Status(0); st&diskio.StatusNoDisk == 0 || st&diskio.StatusNoInit == 0 {
		t.Fatalf("Status() with card removed = %d, want STA_NODISK|STA_NOINIT", st)
	}
}

func TestDriverRejectsOtherDrives(t *testing.T) {
	card := fakecard.NewCard(64, true)
	h := sdspi.New(sdspi.Config{Bus: card, CS: func(bool) {}})
	drv := diskio.NewDriver(h)

	if st := drv.Initialize(1); st&diskio.StatusNoInit == 0 {
		t.Fatal("expected STA_NOINIT for drive != 0")
	}
	buf := make([]byte, sdspi.BlockSize)
	if res := drv.Read(1, buf, 0, 1); res != diskio.ResultParamError {
		t.Fatalf("Read(drive=1) = %v, want ResultParamError", res)
	}
}
