// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package pack provides the public API for reading Weft package
// directories.
//
// A package is a directory holding manifest.json and weights.bin. Most
// users go through exec.SerializeToPackage and exec.LoadPackage; this
// package is for tooling that inspects packages without recompiling
// them.
package pack

import (
	"github.com/weft-ml/weft/internal/pack"
)

// Format constants of the weights file.
const (
	MagicBytes    = pack.MagicBytes
	FormatVersion = pack.FormatVersion
)

// Package file names inside the directory.
const (
	ManifestFile = pack.ManifestFile
	WeightsFile  = pack.WeightsFile
)

// Reader errors, matched with errors.Is.
var (
	ErrBadMagic           = pack.ErrBadMagic
	ErrUnsupportedVersion = pack.ErrUnsupportedVersion
	ErrChecksumMismatch   = pack.ErrChecksumMismatch
)

// Manifest is the JSON description of a compiled program.
type Manifest = pack.Manifest

// SlotMeta describes one value slot of the program.
type SlotMeta = pack.SlotMeta

// InstrMeta describes one instruction of the program.
type InstrMeta = pack.InstrMeta

// Package is an opened, checksum-verified package directory.
type Package = pack.Package

// Open reads and verifies a package directory.
func Open(dir string) (*Package, error) {
	return pack.Open(dir)
}
