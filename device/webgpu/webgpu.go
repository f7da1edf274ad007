// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the public API for the WebGPU compute
// backend.
//
// The backend requires a native WebGPU implementation at runtime.
// Call IsAvailable before New to probe for one without crashing.
//
// Example:
//
//	if !webgpu.IsAvailable() {
//		// fall back to cpu
//	}
//	b, err := webgpu.New()
//	if err != nil {
//		...
//	}
//	defer b.Release()
//	dev := device.NewDevice(b)
package webgpu

import (
	"github.com/weft-ml/weft/internal/device/webgpu"
)

// Backend is the WebGPU accelerator. Release must be called when the
// backend is no longer needed.
type Backend = webgpu.Backend

// New initializes the WebGPU instance, adapter and device.
func New() (*Backend, error) {
	return webgpu.New()
}

// IsAvailable reports whether a WebGPU adapter can be acquired.
func IsAvailable() bool {
	return webgpu.IsAvailable()
}
