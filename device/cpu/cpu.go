// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the public API for the pure Go CPU backend.
//
// Importing this package registers the backend as the process default,
// so device.Default() resolves to it unless another backend registered
// first.
//
// Example:
//
//	dev := device.NewDevice(cpu.New())
package cpu

import (
	"github.com/weft-ml/weft/internal/device/cpu"
)

// Accelerator is the CPU kernel implementation. It is stateless and
// safe for concurrent use.
type Accelerator = cpu.Accelerator

// New creates a CPU accelerator.
func New() *Accelerator {
	return cpu.New()
}
