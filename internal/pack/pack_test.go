package pack

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestPackage(t *testing.T, dir string) *Manifest {
	t.Helper()
	w, err := NewWriter(dir, false)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	off1, err := w.AddBlob([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	off2, err := w.AddBlob([]byte{5, 6, 7, 8, 9})
	if err != nil {
		t.Fatal(err)
	}

	m := &Manifest{
		PackageID: "test",
		CreatedAt: time.Now().UTC(),
		Slots: []SlotMeta{
			{Kind: "constant", DType: "uint8", Shape: []int{4}, HasConst: true, ConstOffset: off1, ConstSize: 4},
			{Kind: "constant", DType: "uint8", Shape: []int{5}, HasConst: true, ConstOffset: off2, ConstSize: 5},
		},
		Feeds:   []int{},
		Targets: []int{0},
	}
	if err := w.Finish(m); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return m
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pkg")
	writeTestPackage(t, dir)

	p, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m := p.Manifest()
	if m.PackageID != "test" {
		t.Errorf("PackageID = %q", m.PackageID)
	}
	if m.FormatVersion != FormatVersion {
		t.Errorf("FormatVersion = %d", m.FormatVersion)
	}

	blob, err := p.Blob(m.Slots[0].ConstOffset, m.Slots[0].ConstSize)
	if err != nil {
		t.Fatalf("Blob: %v", err)
	}
	for i, want := range []byte{1, 2, 3, 4} {
		if blob[i] != want {
			t.Errorf("blob[%d] = %d, want %d", i, blob[i], want)
		}
	}
}

func TestBlobAlignment(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pkg")
	m := writeTestPackage(t, dir)

	if m.Slots[0].ConstOffset != 0 {
		t.Errorf("first blob offset = %d, want 0", m.Slots[0].ConstOffset)
	}
	if m.Slots[1].ConstOffset%BlobAlignment != 0 {
		t.Errorf("second blob offset %d is not %d-byte aligned", m.Slots[1].ConstOffset, BlobAlignment)
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pkg")
	writeTestPackage(t, dir)

	path := filepath.Join(dir, WeightsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[FixedHeaderSize] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(dir); err == nil {
		t.Error("expected checksum error for corrupt data section")
	}
}

func TestBadMagicRejected(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pkg")
	writeTestPackage(t, dir)

	path := filepath.Join(dir, WeightsFile)
	data, _ := os.ReadFile(path)
	copy(data[0:4], "NOPE")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(dir); err == nil {
		t.Error("expected bad magic error")
	}
}

func TestExistingDirRejectedWithoutOverwrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pkg")
	writeTestPackage(t, dir)

	if _, err := NewWriter(dir, false); err == nil {
		t.Error("expected error for existing directory")
	}
	if _, err := NewWriter(dir, true); err != nil {
		t.Errorf("overwrite should be allowed: %v", err)
	}
}

func TestBlobOutOfRange(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pkg")
	writeTestPackage(t, dir)

	p, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Blob(0, 1<<20); err == nil {
		t.Error("expected out of range error")
	}
}
