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

import (
	"golang.org/x/crypto/sha3"
)

// HashPair returns the 32-byte digest of left ∥ right under keccak256
// (legacy Keccak, not NIST SHA3-256). Roots computed by this package are
// externally observable, so the commitment to keccak256 is load-bearing:
// any caller serializing a root must agree on this hash.
func HashPair(left, right Node) Node {
	h := sha3.NewLegacyKeccak256()
	h.Write(left[:])
	h.Write(right[:])
	var out Node
	copy(out[:], h.Sum(nil))
	return out
}

// HashBytes returns the keccak256 digest of an arbitrary byte string, for
// callers that derive a leaf commitment from structured data rather than
// combining two existing nodes.
func HashBytes(b []byte) Node {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	var out Node
	copy(out[:], h.Sum(nil))
	return out
}

// HashToParent combines a child with its sibling into their parent,
// respecting which side of the pair the child occupies.
func HashToParent(child, sibling Node, childIsLeft bool) Node {
	if childIsLeft {
		return HashPair(child, sibling)
	}
	return HashPair(sibling, child)
}

// bit returns the h-th least-significant bit of index.
func bit(index uint32, h uint32) uint32 {
	return (index >> h) & 1
}

// Recompute starts from leaf and bubbles it up through D siblings,
// returning the implied root. It is total: it never fails, and does not
// itself check that siblings has the expected length (callers that need
// that check do it before calling, so they can report a precise error).
func Recompute(leaf Node, siblings []Node, index uint32) Node {
	node := leaf
	for h := 0; h < len(siblings); h++ {
		node = HashToParent(node, siblings[h], bit(index, uint32(h)) == 0)
	}
	return node
}

// recomputePath is Recompute, but also returns the full sequence of
// ancestors at heights 0..len(siblings)-1 (path[0] == leaf) alongside the
// final root. This is what a change log's Path field records.
func recomputePath(leaf Node, siblings []Node, index uint32) (path []Node, root Node) {
	depth := len(siblings)
	path = make([]Node, depth)
	if depth > 0 {
		path[0] = leaf
	}
	node := leaf
	for h := 0; h < depth; h++ {
		node = HashToParent(node, siblings[h], bit(index, uint32(h)) == 0)
		if h+1 < depth {
			path[h+1] = node
		}
	}
	return path, node
}
