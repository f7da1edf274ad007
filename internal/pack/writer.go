package pack

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Writer assembles a package directory. Blobs are accumulated in
// memory and flushed with the manifest on Finish.
type Writer struct {
	dir      string
	data     []byte
	finished bool
}

// NewWriter prepares a package directory. An existing directory is an
// error unless overwrite is set, in which case its contents are
// replaced.
func NewWriter(dir string, overwrite bool) (*Writer, error) {
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("%s exists and is not a directory", dir)
		}
		if !overwrite {
			return nil, fmt.Errorf("package directory %s already exists", dir)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create package directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// AddBlob appends a blob to the data section and returns its aligned
// offset, relative to the start of the section.
func (w *Writer) AddBlob(data []byte) (offset int64, err error) {
	if w.finished {
		return 0, fmt.Errorf("writer is finished")
	}
	if pad := (BlobAlignment - (len(w.data) % BlobAlignment)) % BlobAlignment; pad > 0 {
		w.data = append(w.data, make([]byte, pad)...)
	}
	offset = int64(len(w.data))
	w.data = append(w.data, data...)
	return offset, nil
}

// Finish writes weights.bin and manifest.json. The writer cannot be
// used afterwards.
func (w *Writer) Finish(m *Manifest) error {
	if w.finished {
		return fmt.Errorf("writer is finished")
	}
	w.finished = true

	m.FormatVersion = FormatVersion

	checksum := sha256.Sum256(w.data)

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], uint32(FormatVersion))
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(w.data)))
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	weights := append(fixed, w.data...)
	if err := os.WriteFile(filepath.Join(w.dir, WeightsFile), weights, 0o644); err != nil {
		return fmt.Errorf("failed to write weights: %w", err)
	}

	manifestJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, ManifestFile), manifestJSON, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
