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

package merkle

// naiveTree is a from-scratch, obviously-correct dense binary tree used
// as an oracle inside this package's own tests. It is deliberately kept
// separate from testutil.ReferenceTree (which depends on this package)
// to avoid giving this package's internal test files a dependency on
// anything that imports merkle itself.
type naiveTree struct {
	depth uint32
	nodes [][]Node
}

func newNaiveTree(depth uint32) *naiveTree {
	t := &naiveTree{depth: depth, nodes: make([][]Node, depth+1)}
	size := uint32(1) << depth
	for h := uint32(0); h <= depth; h++ {
		level := make([]Node, size)
		empty := EmptyRoot(h)
		for i := range level {
			level[i] = empty
		}
		t.nodes[h] = level
		size >>= 1
	}
	return t
}

func (t *naiveTree) set(index uint32, leaf Node) {
	t.nodes[0][index] = leaf
	idx := index
	for h := uint32(0); h < t.depth; h++ {
		left, right := idx, idx^1
		if idx%2 == 1 {
			left, right = idx^1, idx
		}
		t.nodes[h+1][idx>>1] = HashPair(t.nodes[h][left], t.nodes[h][right])
		idx >>= 1
	}
}

func (t *naiveTree) root() Node {
	return t.nodes[t.depth][0]
}

func (t *naiveTree) proofFor(index uint32) []Node {
	proof := make([]Node, t.depth)
	idx := index
	for h := uint32(0); h < t.depth; h++ {
		proof[h] = t.nodes[h][idx^1]
		idx >>= 1
	}
	return proof
}
