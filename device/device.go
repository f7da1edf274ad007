// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package device provides the public API for compute devices in Weft.
//
// A Device wraps an Accelerator, the kernel interface that executables
// dispatch against. Backends live in subpackages:
//   - device/cpu: pure Go reference backend, always available
//   - device/webgpu: GPU backend via WebGPU compute shaders
//
// Example:
//
//	dev := device.NewDevice(cpu.New())
//	exe, err := exec.Compile(dev, g, feeds, targets, nil)
package device

import (
	"github.com/weft-ml/weft/internal/device"
)

// Accelerator is the kernel interface a backend implements.
type Accelerator = device.Accelerator

// Device wraps an accelerator for use by compilation and execution.
type Device = device.Device

// NewDevice wraps an accelerator.
func NewDevice(accel Accelerator) *Device {
	return device.NewDevice(accel)
}

// Default returns the process-wide default device. Importing
// device/cpu registers the CPU backend as the default.
func Default() *Device {
	return device.Default()
}

// RegisterDefault installs the factory used by Default. The first
// registration wins.
func RegisterDefault(f func() Accelerator) {
	device.RegisterDefault(f)
}
