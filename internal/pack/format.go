// Package pack reads and writes compiled graph packages on disk. A
// package is a directory holding manifest.json, the JSON description of
// the compiled program, and weights.bin, the aligned binary section
// with the baked constant data.
//
// The weights file starts with a 64-byte fixed header:
//
//	0x00  magic "WEFT"
//	0x04  format version (u32, little endian)
//	0x08  flags (u32)
//	0x10  data section size (u64)
//	0x20  SHA-256 checksum of the data section (32 bytes)
//
// The data section follows at offset 64; every blob inside it is
// aligned to 64 bytes. Offsets recorded in the manifest are relative to
// the start of the data section.
package pack

import (
	"errors"
	"time"
)

// Format constants.
const (
	MagicBytes      = "WEFT"
	FormatVersion   = 1
	FixedHeaderSize = 64
	BlobAlignment   = 64
	ChecksumSize    = 32
	ChecksumOffset  = 0x20
)

// Package file names inside the directory.
const (
	ManifestFile = "manifest.json"
	WeightsFile  = "weights.bin"
)

// Reader errors, matched with errors.Is.
var (
	ErrBadMagic           = errors.New("bad magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
)

// Manifest is the JSON description of a compiled program: its value
// slots, instruction list and binding order. Together with the weights
// file it is sufficient to rebuild and recompile the program.
type Manifest struct {
	FormatVersion     int       `json:"format_version"`
	PackageID         string    `json:"package_id"`
	CreatedAt         time.Time `json:"created_at"`
	DeviceName        string    `json:"device_name"`
	OptimizationLevel int       `json:"optimization_level"`
	DeploymentTarget  string    `json:"deployment_target,omitempty"`

	Slots        []SlotMeta  `json:"slots"`
	Instructions []InstrMeta `json:"instructions"`

	// Feeds and Targets index into Slots, in binding order.
	Feeds   []int `json:"feeds"`
	Targets []int `json:"targets"`
}

// SlotMeta describes one value slot. Shape distinguishes nil (unranked,
// JSON null) from empty (rank-0 scalar, JSON []); readers must preserve
// the difference.
type SlotMeta struct {
	Kind  string `json:"kind"`
	Name  string `json:"name,omitempty"`
	DType string `json:"dtype"`
	Shape []int  `json:"shape"`

	// Baked data location in the weights file, for constant and
	// variable slots.
	HasConst    bool  `json:"has_const,omitempty"`
	ConstOffset int64 `json:"const_offset,omitempty"`
	ConstSize   int64 `json:"const_size,omitempty"`
}

// InstrMeta describes one compute instruction. NewShape carries the
// same null-vs-[] distinction as SlotMeta.Shape, so it must not be
// omitted when empty.
type InstrMeta struct {
	Kind     string `json:"kind"`
	Inputs   []int  `json:"inputs"`
	Outputs  []int  `json:"outputs"`
	NewShape []int  `json:"new_shape"`
	Callee   string `json:"callee,omitempty"`
}
