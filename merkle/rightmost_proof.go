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

// RightmostProof is the sibling path of the next-to-append slot: at
// height h, Proof[h] is only meaningful once bit h of Index has been set
// by some prior append (it then holds the completed left sibling at that
// height). Index is the number of leaves ever appended, i.e. the slot
// the next Append will occupy; Leaf is the most recently appended (or
// spliced) leaf value.
type RightmostProof struct {
	Proof []Node
	Index uint32
	Leaf  Node
}

func (p RightmostProof) clone() RightmostProof {
	proof := make([]Node, len(p.Proof))
	copy(proof, p.Proof)
	return RightmostProof{Proof: proof, Index: p.Index, Leaf: p.Leaf}
}
