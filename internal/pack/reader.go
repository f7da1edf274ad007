package pack

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Package is a loaded package: the parsed manifest plus the verified
// data section held in memory.
type Package struct {
	manifest Manifest
	data     []byte
}

// Open reads and verifies a package directory. The weights checksum is
// validated eagerly so corruption surfaces at load, not mid-run.
func Open(dir string) (*Package, error) {
	manifestJSON, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(manifestJSON, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: manifest version %d", ErrUnsupportedVersion, m.FormatVersion)
	}

	weights, err := os.ReadFile(filepath.Join(dir, WeightsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read weights: %w", err)
	}
	if len(weights) < FixedHeaderSize {
		return nil, fmt.Errorf("%w: weights file truncated", ErrBadMagic)
	}
	if string(weights[0:4]) != MagicBytes {
		return nil, fmt.Errorf("%w: got %q", ErrBadMagic, weights[0:4])
	}
	if v := binary.LittleEndian.Uint32(weights[4:8]); v != FormatVersion {
		return nil, fmt.Errorf("%w: weights version %d", ErrUnsupportedVersion, v)
	}

	dataSize := binary.LittleEndian.Uint64(weights[16:24])
	if uint64(len(weights)-FixedHeaderSize) < dataSize {
		return nil, fmt.Errorf("%w: data section truncated", ErrChecksumMismatch)
	}
	data := weights[FixedHeaderSize : FixedHeaderSize+dataSize]

	var stored [ChecksumSize]byte
	copy(stored[:], weights[ChecksumOffset:ChecksumOffset+ChecksumSize])
	if sha256.Sum256(data) != stored {
		return nil, fmt.Errorf("%w: weights data corrupt", ErrChecksumMismatch)
	}

	return &Package{manifest: m, data: data}, nil
}

// Manifest returns the parsed manifest.
func (p *Package) Manifest() *Manifest {
	return &p.manifest
}

// Blob returns a copy of the data section range [offset, offset+size).
func (p *Package) Blob(offset, size int64) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > int64(len(p.data)) {
		return nil, fmt.Errorf("blob [%d, %d) out of range (data section is %d bytes)", offset, offset+size, len(p.data))
	}
	out := make([]byte, size)
	copy(out, p.data[offset:offset+size])
	return out, nil
}
