// Copyright 2016 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package testutil provides a naive, obviously-correct reference Merkle
// tree used as an oracle in property tests: it stores every level and
// rehashes a leaf's ancestors on every write, trading memory for code
// simple enough to trust by inspection, the same role the off-chain MerkleTree fixture plays
// against the on-chain roll it mirrors.
package testutil

import "github.com/concurrent-merkle-tree/cmt/merkle"

// ReferenceTree is a complete binary tree of 2^depth leaf slots, every
// slot initialized to merkle.EMPTY. It is not concurrency-safe and not
// optimized; it exists purely to generate known-good roots and proofs
// to check a MerkleRoll against.
type ReferenceTree struct {
	depth uint32
	nodes [][]merkle.Node // nodes[0] is the leaf level, nodes[depth] is the single root
}

// NewReferenceTree builds an all-empty reference tree of the given depth.
func NewReferenceTree(depth uint32) *ReferenceTree {
	t := &ReferenceTree{depth: depth}
	t.nodes = make([][]merkle.Node, depth+1)
	size := uint32(1) << depth
	for h := uint32(0); h <= depth; h++ {
		level := make([]merkle.Node, size)
		empty := merkle.EmptyRoot(h)
		for i := range level {
			level[i] = empty
		}
		t.nodes[h] = level
		size >>= 1
	}
	return t
}

// Set writes leaf into slot index and recomputes every ancestor up to the
// root.
func (t *ReferenceTree) Set(index uint32, leaf merkle.Node) {
	t.nodes[0][index] = leaf
	idx := index
	for h := uint32(0); h < t.depth; h++ {
		sibling := idx ^ 1
		left, right := idx, sibling
		if idx%2 == 1 {
			left, right = sibling, idx
		}
		t.nodes[h+1][idx>>1] = merkle.HashPair(t.nodes[h][left], t.nodes[h][right])
		idx >>= 1
	}
}

// Leaf returns the current value of slot index.
func (t *ReferenceTree) Leaf(index uint32) merkle.Node {
	return t.nodes[0][index]
}

// Root returns the current root.
func (t *ReferenceTree) Root() merkle.Node {
	return t.nodes[t.depth][0]
}

// ProofFor returns the sibling path for index, bottom-up, suitable for
// passing to MerkleRoll.SetLeaf / ProveLeaf / InitializeWithRoot.
func (t *ReferenceTree) ProofFor(index uint32) []merkle.Node {
	proof := make([]merkle.Node, t.depth)
	idx := index
	for h := uint32(0); h < t.depth; h++ {
		proof[h] = t.nodes[h][idx^1]
		idx >>= 1
	}
	return proof
}
