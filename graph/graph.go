// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph provides the public API for building symbolic
// computation graphs in Weft.
//
// A Graph is an append-only arena of operations. Tensors are symbolic
// edges between operations; no data flows until the graph is compiled
// into an Executable and run. Graphs are acyclic by construction:
// every operation can only consume tensors that already exist.
//
// Example:
//
//	g := graph.New()
//	x := g.Placeholder(tensor.Float32, tensor.Shape{2, 2}, "x")
//	y := g.Placeholder(tensor.Float32, tensor.Shape{2, 2}, "y")
//	z, err := g.Add(x, y, "z")
package graph

import (
	"github.com/weft-ml/weft/internal/graph"
)

// Graph is an append-only operation arena.
type Graph = graph.Graph

// Operation is a node in the graph. Its outputs are Tensors.
type Operation = graph.Operation

// Tensor is a symbolic value: one output of one operation.
type Tensor = graph.Tensor

// OpKind identifies what an operation computes.
type OpKind = graph.OpKind

// Operation kinds.
const (
	OpPlaceholder OpKind = graph.OpPlaceholder
	OpConstant    OpKind = graph.OpConstant
	OpVariable    OpKind = graph.OpVariable
	OpAdd         OpKind = graph.OpAdd
	OpSubtract    OpKind = graph.OpSubtract
	OpMultiply    OpKind = graph.OpMultiply
	OpDivide      OpKind = graph.OpDivide
	OpMatMul      OpKind = graph.OpMatMul
	OpTranspose   OpKind = graph.OpTranspose
	OpReshape     OpKind = graph.OpReshape
	OpNeg         OpKind = graph.OpNeg
	OpExp         OpKind = graph.OpExp
	OpSqrt        OpKind = graph.OpSqrt
	OpReLU        OpKind = graph.OpReLU
	OpSigmoid     OpKind = graph.OpSigmoid
	OpTanh        OpKind = graph.OpTanh
	OpCall        OpKind = graph.OpCall
)

// New creates an empty graph.
func New() *Graph {
	return graph.New()
}

// ParseOpKind maps a stable lowercase name back to its OpKind.
func ParseOpKind(s string) (OpKind, bool) {
	return graph.ParseOpKind(s)
}
