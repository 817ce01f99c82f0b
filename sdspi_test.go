package sdspi_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	sdspi "github.com/kpf5297/fatfs-sdcard-spi"
	"github.com/kpf5297/fatfs-sdcard-spi/internal/fakecard"
)

func newTestHandle(t *testing.T, sdhc bool, blocks uint32) (*sdspi.Handle, *fakecard.Card) {
	t.Helper()
	card := fakecard.NewCard(blocks, sdhc)
	h := sdspi.New(sdspi.Config{
		Bus: card,
		CS:  func(bool) {},
	})
	return h, card
}

func TestInitSDHC(t *testing.T) {
	h, _ := newTestHandle(t, true, 4096)
	if status := h.Init(); status != sdspi.StatusOK {
		t.Fatalf("Init() = %s, want OK", status)
	}
	if !h.IsSDHC() {
		t.Fatal("expected SDHC addressing")
	}
	if !h.IsInitialized() {
		t.Fatal("expected initialized")
	}
	if got := h.BlockCount(); got == 0 {
		t.Fatal("expected non-zero capacity")
	}
}

func TestInitSDSC(t *testing.T) {
	h, _ := newTestHandle(t, false, 2048)
	if status := h.Init(); status != sdspi.StatusOK {
		t.Fatalf("Init() = %s, want OK", status)
	}
	if h.IsSDHC() {
		t.Fatal("expected byte addressing (SDSC)")
	}
}

func TestReadWriteSingleBlock(t *testing.T) {
	h, _ := newTestHandle(t, true, 64)
	if status := h.Init(); status != sdspi.StatusOK {
		t.Fatalf("Init() = %s", status)
	}

	want := make([]byte, sdspi.BlockSize)
	for i := range want {
		want[i] = byte(i * 7)
	}
	if status := h.WriteSingleBlock(want, 3); status != sdspi.StatusOK {
		t.Fatalf("WriteSingleBlock() = %s", status)
	}

	got := make([]byte, sdspi.BlockSize)
	if status := h.ReadSingleBlock(got, 3); status != sdspi.StatusOK {
		t.Fatalf("ReadSingleBlock() = %s", status)
	}
	if !bytes.Equal(want, got) {
		t.Fatal("read back data does not match what was written")
	}
}

func TestReadWriteMultiBlocks(t *testing.T) {
	h, _ := newTestHandle(t, true, 64)
	if status := h.Init(); status != sdspi.StatusOK {
		t.Fatalf("Init() = %s", status)
	}

	const count = 5
	want := make([]byte, sdspi.BlockSize*count)
	for i := range want {
		want[i] = byte(i)
	}
	if status := h.WriteBlocks(want, 10, count); status != sdspi.StatusOK {
		t.Fatalf("WriteBlocks() = %s", status)
	}

	got := make([]byte, sdspi.BlockSize*count)
	if status := h.ReadBlocks(got, 10, count); status != sdspi.StatusOK {
		t.Fatalf("ReadBlocks() = %s", status)
	}
	if !bytes.Equal(want, got) {
		t.Fatal("multi-block read back does not match what was written")
	}
}

func TestReadBlocksBeforeInit(t *testing.T) {
	h, _ := newTestHandle(t, true, 64)
	buf := make([]byte, sdspi.BlockSize)
	if status := h.ReadSingleBlock(buf, 0); status != sdspi.StatusError {
		t.Fatalf("ReadSingleBlock() before Init = %s, want ERROR", status)
	}
}

func TestCardAbsentFailsInitWithNoMedia(t *testing.T) {
	card := fakecard.NewCard(64, true)
	present := false
	h := sdspi.New(sdspi.Config{
		Bus: card,
		CS:  func(bool) {},
		CardDetect: &sdspi.CardDetect{
			Read: func() bool { return present },
		},
	})
	if status := h.Init(); status != sdspi.StatusNoMedia {
		t.Fatalf("Init() with no card = %s, want NO_MEDIA", status)
	}

	present = true
	if status := h.Init(); status != sdspi.StatusOK {
		t.Fatalf("Init() after insert = %s, want OK", status)
	}
}

func TestParamErrors(t *testing.T) {
	h, _ := newTestHandle(t, true, 64)
	if status := h.Init(); status != sdspi.StatusOK {
		t.Fatalf("Init() = %s", status)
	}
	if status := h.ReadBlocks(nil, 0, 1); status != sdspi.StatusParam {
		t.Fatalf("ReadBlocks(nil) = %s, want PARAM", status)
	}
	if status := h.WriteBlocks(make([]byte, sdspi.BlockSize), 0, 0); status != sdspi.StatusParam {
		t.Fatalf("WriteBlocks(count=0) = %s, want PARAM", status)
	}
}

func TestSyncRequiresInit(t *testing.T) {
	h, _ := newTestHandle(t, true, 64)
	if status := h.Sync(); status != sdspi.StatusError {
		t.Fatalf("Sync() before Init = %s, want ERROR", status)
	}
	if status := h.Init(); status != sdspi.StatusOK {
		t.Fatalf("Init() = %s", status)
	}
	if status := h.Sync(); status != sdspi.StatusOK {
		t.Fatalf("Sync() = %s, want OK", status)
	}
}

func TestSyncChecksPresence(t *testing.T) {
	card := fakecard.NewCard(64, true)
	present := true
	h := sdspi.New(sdspi.Config{
		Bus: card,
		CS:  func(bool) {},
		CardDetect: &sdspi.CardDetect{
			Read: func() bool { return present },
		},
	})
	if status := h.Init(); status != sdspi.StatusOK {
		t.Fatalf("Init() = %s", status)
	}

	present = false
	if status := h.Sync(); status != sdspi.StatusNoMedia {
		t.Fatalf("Sync() with card removed = %s, want NO_MEDIA", status)
	}
	if h.IsInitialized() {
		t.Fatal("expected IsInitialized() false after Sync() observes card removed")
	}
}

func TestPresentReflectsCardDetect(t *testing.T) {
	card := fakecard.NewCard(64, true)
	present := true
	h := sdspi.New(sdspi.Config{
		Bus: card,
		CS:  func(bool) {},
		CardDetect: &sdspi.CardDetect{
			Read: func() bool { return present },
		},
	})
	if !h.Present() {
		t.Fatal("expected Present() true")
	}
	present = false
	if h.Present() {
		t.Fatal("expected Present() false after card removed")
	}
}

func TestCloseClearsInitialized(t *testing.T) {
	h, _ := newTestHandle(t, true, 64)
	if status := h.Init(); status != sdspi.StatusOK {
		t.Fatalf("Init() = %s", status)
	}
	h.Close()
	if h.IsInitialized() {
		t.Fatal("expected IsInitialized() false after Close()")
	}
	buf := make([]byte, sdspi.BlockSize)
	if status := h.ReadSingleBlock(buf, 0); status != sdspi.StatusError {
		t.Fatalf("ReadSingleBlock() after Close() = %s, want ERROR", status)
	}
}

func TestInitWithoutBusOrCS(t *testing.T) {
	h := sdspi.New(sdspi.Config{})
	if status := h.Init(); status != sdspi.StatusError {
		t.Fatalf("Init() with no Bus/CS = %s, want ERROR", status)
	}
}

func TestStatsTrackOperations(t *testing.T) {
	h, _ := newTestHandle(t, true, 64)
	h.Init()
	buf := make([]byte, sdspi.BlockSize)
	h.WriteSingleBlock(buf, 0)
	h.ReadSingleBlock(buf, 0)

	stats := h.Stats()
	want := sdspi.Stats{WriteOps: 1, ReadOps: 1, WriteBlocks: 1, ReadBlocks: 1, InitAttempts: 1}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Fatalf("Stats() mismatch (-want +got):\n%s", diff)
	}

	h.ResetStats()
	if s := h.Stats(); s.WriteOps != 0 || s.ReadOps != 0 {
		t.Fatalf("Stats() after reset = %+v, want zeroed", s)
	}
}
