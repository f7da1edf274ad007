// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package exec provides the public API for compiling and running Weft
// graphs.
//
// Compile turns a graph, a feed contract and a target list into an
// immutable Executable. Executables run synchronously with Run or
// RunInputs, or asynchronously through a CommandQueue and
// CommandBuffer. SerializeToPackage and LoadPackage move compiled
// programs to and from disk.
//
// Example:
//
//	exe, err := exec.Compile(dev, g, feeds, targets, nil)
//	if err != nil {
//		...
//	}
//	results, err := exe.Run(map[*graph.Tensor]*tensor.TensorData{x: in})
package exec

import (
	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/exec"
	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// Executable is a compiled, immutable program. It is safe for
// concurrent use.
type Executable = exec.Executable

// CommandQueue serializes command buffers onto a device. Buffers
// commit in order and execute in commit order.
type CommandQueue = exec.CommandQueue

// QueueOption configures a CommandQueue.
type QueueOption = exec.QueueOption

// WithLogger installs a logger on the queue.
var WithLogger = exec.WithLogger

// WithQueueDepth sets the number of committed buffers the queue holds
// before Commit blocks.
var WithQueueDepth = exec.WithQueueDepth

// CommandBuffer collects encoded work and tracks its lifecycle from
// NotEnqueued through Completed or Error.
type CommandBuffer = exec.CommandBuffer

// Status is the lifecycle state of a command buffer. It only moves
// forward.
type Status = exec.Status

// Command buffer states.
const (
	NotEnqueued Status = exec.NotEnqueued
	Enqueued    Status = exec.Enqueued
	Committed   Status = exec.Committed
	Scheduled   Status = exec.Scheduled
	Completed   Status = exec.Completed
	Error       Status = exec.Error
)

// OptimizationLevel selects how aggressively Compile rewrites the
// program.
type OptimizationLevel = exec.OptimizationLevel

// Optimization levels.
const (
	OptimizationLevel0 OptimizationLevel = exec.OptimizationLevel0
	OptimizationLevel1 OptimizationLevel = exec.OptimizationLevel1
)

// ScheduledHandler fires when a buffer's work is picked up by the
// queue dispatcher.
type ScheduledHandler = exec.ScheduledHandler

// CompletionHandler fires once when a buffer reaches a terminal state.
// The results slice is only valid for the duration of the call; retain
// what must outlive it.
type CompletionHandler = exec.CompletionHandler

// CompilationDescriptor configures Compile: optimization level, debug
// logging and the callable table for Call operations.
type CompilationDescriptor = exec.CompilationDescriptor

// ExecutionDescriptor configures a single run: synchronous preference
// and handlers.
type ExecutionDescriptor = exec.ExecutionDescriptor

// SerializationDescriptor configures SerializeToPackage.
type SerializationDescriptor = exec.SerializationDescriptor

// FeedList is an ordered feed builder that rejects duplicates.
type FeedList = exec.FeedList

// NewFeedList creates an empty feed list.
func NewFeedList() *FeedList {
	return exec.NewFeedList()
}

// Sentinel errors, matched with errors.Is.
var (
	ErrMissingFeed      = exec.ErrMissingFeed
	ErrShapeMismatch    = exec.ErrShapeMismatch
	ErrAlreadyCommitted = exec.ErrAlreadyCommitted
	ErrNotCommitted     = exec.ErrNotCommitted
	ErrBadPackage       = exec.ErrBadPackage
)

// Compile compiles a graph into an executable for the given device.
// The feeds map declares the shape contract of each placeholder;
// targets selects the outputs.
func Compile(dev *device.Device, g *graph.Graph, feeds map[*graph.Tensor]tensor.ShapedType, targets []*graph.Tensor, desc *CompilationDescriptor) (*Executable, error) {
	return exec.Compile(dev, g, feeds, targets, desc)
}

// NewCommandQueue creates a queue with a running dispatcher. Close
// releases it.
func NewCommandQueue(dev *device.Device, opts ...QueueOption) *CommandQueue {
	return exec.NewCommandQueue(dev, opts...)
}

// Run compiles and synchronously runs a graph in one step. For
// repeated execution, Compile once and reuse the Executable.
func Run(dev *device.Device, g *graph.Graph, feeds map[*graph.Tensor]*tensor.TensorData, targets []*graph.Tensor) (map[*graph.Tensor]*tensor.TensorData, error) {
	return exec.Run(dev, g, feeds, targets)
}

// RunAsync compiles a graph and commits it to the queue, returning the
// in-flight command buffer.
func RunAsync(q *CommandQueue, g *graph.Graph, feeds map[*graph.Tensor]*tensor.TensorData, targets []*graph.Tensor, desc *ExecutionDescriptor) (*CommandBuffer, error) {
	return exec.RunAsync(q, g, feeds, targets, desc)
}

// EncodeGraph compiles a graph and encodes its execution onto an open
// command buffer without committing it.
func EncodeGraph(cb *CommandBuffer, g *graph.Graph, feeds map[*graph.Tensor]*tensor.TensorData, targets []*graph.Tensor, desc *ExecutionDescriptor) error {
	return exec.EncodeGraph(cb, g, feeds, targets, desc)
}

// SerializeToPackage writes a compiled executable to a package
// directory.
func SerializeToPackage(exe *Executable, dir string, desc *SerializationDescriptor) error {
	return exec.SerializeToPackage(exe, dir, desc)
}

// LoadPackage reads a package directory back into an executable,
// recompiling it for the given device. Callables referenced by the
// package must be registered in desc; only their symbols are stored.
func LoadPackage(dev *device.Device, dir string, desc *CompilationDescriptor) (*Executable, error) {
	return exec.LoadPackage(dev, dir, desc)
}
