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
	"math/bits"

	"github.com/golang/glog"
)

// Recorder is an optional sink for engine instrumentation. It is never
// required for correctness; a nil Recorder disables instrumentation
// entirely. internal/metrics provides a Prometheus-backed implementation.
type Recorder interface {
	// ObserveOperation is called once per public operation with its name
	// ("append", "set_leaf", "prove_leaf", ...) and its outcome (nil on
	// success).
	ObserveOperation(op string, err error)
	// ObserveReconciliationDistance is called by SetLeaf and ProveLeaf
	// with how many change-log entries back the matched root was found.
	ObserveReconciliationDistance(distance uint32)
}

// MerkleRoll is a fixed-capacity, single-writer Merkle tree that accepts
// mutations accompanied by proofs against any of its last BufferSize
// roots, i.e. roots fewer than BufferSize mutations old.
// Depth and BufferSize are fixed at construction (Go has no const
// generics to fix them at compile time the way the reference
// implementation's MerkleRoll<const D, const B> does).
type MerkleRoll struct {
	Depth      uint32
	BufferSize uint32

	SequenceNumber uint64
	ring           *changeLogRing
	rightmostProof RightmostProof
	initialized    bool

	Recorder Recorder
}

// NewMerkleRoll constructs an uninitialized roll of the given depth and
// change-log buffer capacity. Call Initialize or InitializeWithRoot
// before using it.
func NewMerkleRoll(depth, bufferSize uint32) *MerkleRoll {
	return &MerkleRoll{
		Depth:      depth,
		BufferSize: bufferSize,
		ring:       newChangeLogRing(depth, bufferSize),
		rightmostProof: RightmostProof{
			Proof: make([]Node, depth),
		},
	}
}

// capacity is 2^Depth, the number of leaf slots.
func (m *MerkleRoll) capacity() uint64 {
	return uint64(1) << uint64(m.Depth)
}

func (m *MerkleRoll) record(op string, err error) {
	if m.Recorder != nil {
		m.Recorder.ObserveOperation(op, err)
	}
}

// Initialize activates an empty roll: every slot is EMPTY, and the root
// is the depth-Depth empty-subtree root.
func (m *MerkleRoll) Initialize() error {
	if m.initialized || m.SequenceNumber != 0 || m.ring.bufferSize != 0 {
		err := newErr(KindTreeAlreadyInitialized, "roll is already active")
		m.record("initialize", err)
		return err
	}

	path := make([]Node, m.Depth)
	proof := make([]Node, m.Depth)
	for h := uint32(0); h < m.Depth; h++ {
		path[h] = EmptyRoot(h)
		proof[h] = EmptyRoot(h)
	}
	m.ring.entries[0] = ChangeLog{Root: EmptyRoot(m.Depth), Path: path, Index: 0}
	m.ring.activeIdx = 0
	m.ring.bufferSize = 1
	m.rightmostProof = RightmostProof{Proof: proof, Index: 0, Leaf: EMPTY}
	m.SequenceNumber = 0
	m.initialized = true

	glog.V(2).Infof("merkle: initialize depth=%d buffer=%d root=%x", m.Depth, m.BufferSize, m.ring.active().Root)
	m.record("initialize", nil)
	return nil
}

// InitializeWithRoot bootstraps a roll with pre-existing contents: root is
// the externally-known current root, rightmostLeaf/proof/index describe
// the rightmost filled leaf's authentication path. index must be >= 1;
// a caller bootstrapping a genuinely empty tree should call Initialize
// instead (see DESIGN.md for why index == 0 is rejected here rather than
// treated as a bare Initialize).
func (m *MerkleRoll) InitializeWithRoot(root, rightmostLeaf Node, proof []Node, index uint32) error {
	if m.initialized || m.SequenceNumber != 0 || m.ring.bufferSize != 0 {
		err := newErr(KindTreeAlreadyInitialized, "roll is already active")
		m.record("initialize_with_root", err)
		return err
	}
	if index == 0 {
		err := newErr(KindInvalidProof, "index must be >= 1; use Initialize for an empty tree")
		m.record("initialize_with_root", err)
		return err
	}
	if uint32(len(proof)) != m.Depth {
		err := newErr(KindInvalidProof, "proof length %d != depth %d", len(proof), m.Depth)
		m.record("initialize_with_root", err)
		return err
	}

	path, computedRoot := recomputePath(rightmostLeaf, proof, index-1)
	if computedRoot != root {
		err := newErr(KindInvalidProof, "supplied root does not match recomputed root")
		m.record("initialize_with_root", err)
		return err
	}

	m.ring.entries[0] = ChangeLog{Root: root, Path: path, Index: index - 1}
	m.ring.activeIdx = 0
	m.ring.bufferSize = 1
	proofCopy := make([]Node, len(proof))
	copy(proofCopy, proof)
	// RightmostProof.Proof holds the frontier's left siblings. At the
	// frontier's lowest set bit that sibling is the rightmost leaf's own
	// ancestor, not its sibling; every other set bit shares the sibling.
	if tz := uint32(bits.TrailingZeros32(index)); tz < m.Depth {
		proofCopy[tz] = path[tz]
	}
	m.rightmostProof = RightmostProof{Proof: proofCopy, Index: index, Leaf: rightmostLeaf}
	m.SequenceNumber = 0
	m.initialized = true

	glog.V(2).Infof("merkle: initialize_with_root depth=%d index=%d root=%x", m.Depth, index, root)
	m.record("initialize_with_root", nil)
	return nil
}

// GetChangeLog returns a copy of the active (most recent) change log.
func (m *MerkleRoll) GetChangeLog() ChangeLog {
	return m.ring.active().clone()
}

// Snapshot returns the full ring contents (in ring-slot order, regardless
// of how many are actually populated), the index of the active entry
// within that slice, and how many of those slots hold a real published
// entry rather than pre-allocated zero state, for a caller that wants to
// persist the roll's complete state externally (see internal/codec). It
// is a deep copy.
func (m *MerkleRoll) Snapshot() (entries []ChangeLog, activeIndex, validCount uint32) {
	entries = make([]ChangeLog, len(m.ring.entries))
	for i, e := range m.ring.entries {
		entries[i] = e.clone()
	}
	return entries, m.ring.activeIdx, m.ring.bufferSize
}

// Restore replaces the roll's entire state with previously-captured
// values, bypassing Initialize/InitializeWithRoot's validation (the
// caller is expected to have obtained entries/activeIndex/validCount/
// sequenceNumber from a matching Snapshot, or from internal/codec.Decode
// against bytes a matching Snapshot produced). len(entries) must equal
// BufferSize, len(rightmost.Proof) must equal Depth, and validCount must
// not exceed BufferSize.
func (m *MerkleRoll) Restore(entries []ChangeLog, activeIndex, validCount uint32, rightmost RightmostProof, sequenceNumber uint64) error {
	if uint32(len(entries)) != m.BufferSize {
		return newErr(KindInvalidProof, "snapshot has %d ring entries, want %d", len(entries), m.BufferSize)
	}
	if uint32(len(rightmost.Proof)) != m.Depth {
		return newErr(KindInvalidProof, "snapshot rightmost proof has length %d, want %d", len(rightmost.Proof), m.Depth)
	}
	if validCount > m.BufferSize {
		return newErr(KindInvalidProof, "snapshot valid count %d exceeds buffer size %d", validCount, m.BufferSize)
	}

	for i, e := range entries {
		m.ring.entries[i] = e.clone()
	}
	m.ring.activeIdx = activeIndex
	m.ring.bufferSize = validCount
	m.rightmostProof = rightmost.clone()
	m.SequenceNumber = sequenceNumber
	m.initialized = true
	return nil
}

// GetRightmostProof returns a copy of the current rightmost proof.
func (m *MerkleRoll) GetRightmostProof() RightmostProof {
	return m.rightmostProof.clone()
}

func (m *MerkleRoll) publish(path []Node, root Node, index uint32) {
	m.ring.publish(ChangeLog{Root: root, Path: path, Index: index})
	m.SequenceNumber++
}

// Append adds leaf at the current frontier (RightmostProof.Index).
func (m *MerkleRoll) Append(leaf Node) error {
	i := m.rightmostProof.Index
	if uint64(i) >= m.capacity() {
		err := newErr(KindTreeFull, "index %d has reached capacity %d", i, m.capacity())
		m.record("append", err)
		return err
	}

	path, root := m.appendAt(leaf, i)
	m.publish(path, root, i)
	m.rightmostProof.Leaf = leaf
	m.rightmostProof.Index = i + 1

	glog.V(2).Infof("merkle: append index=%d root=%x", i, root)
	m.record("append", nil)
	return nil
}

// appendAt bubbles a single leaf up at index i, reading and updating
// rightmostProof.Proof in place for every height where i's bit is 0 (the
// leaf just placed is the left child of a not-yet-completed subtree), and
// reusing the recorded sibling unchanged where i's bit is 1 (the subtree
// at that height was already half-filled by a previous append).
func (m *MerkleRoll) appendAt(leaf Node, i uint32) (path []Node, root Node) {
	path = make([]Node, m.Depth)
	node := leaf
	if m.Depth > 0 {
		path[0] = leaf
	}
	for h := uint32(0); h < m.Depth; h++ {
		var sibling Node
		childIsLeft := bit(i, h) == 0
		if childIsLeft {
			sibling = EmptyRoot(h)
			m.rightmostProof.Proof[h] = node
		} else {
			sibling = m.rightmostProof.Proof[h]
		}
		node = HashToParent(node, sibling, childIsLeft)
		if h+1 < m.Depth {
			path[h+1] = node
		}
	}
	return path, node
}

// divergenceHeight returns the height at which two distinct leaf indices'
// authentication paths are siblings of one another: the position of the
// highest set bit of a XOR b. It is the shared core of proof
// reconciliation (fast-forwarding a stale proof against newer change
// logs) and of rightmost-proof patching (propagating a SetLeaf into the
// append frontier's sibling path) -- both are "does this other mutated
// index share my sibling at some height, and if so which".
func divergenceHeight(a, b uint32) (height uint32, ok bool) {
	x := a ^ b
	if x == 0 {
		return 0, false
	}
	return uint32(bits.Len32(x) - 1), true
}

// reconcile walks the ring backward looking for an entry whose root
// equals root, then fast-forwards proof (length Depth, for leaf index)
// against every entry newer than the match, patching at most one height
// per entry. It returns the fast-forwarded proof and how far back the
// match was found; it never mutates the roll.
func (m *MerkleRoll) reconcile(root Node, proof []Node, index uint32) ([]Node, uint32, error) {
	ffProof := make([]Node, len(proof))
	copy(ffProof, proof)

	var distance uint32
	if m.ring.active().Root == root {
		distance = 0
	} else {
		_, d, ok := m.ring.findByRoot(root)
		if !ok {
			return nil, 0, newErr(KindRootNotFound, "root %x not found in change-log ring", root)
		}
		distance = d
	}

	for _, entry := range m.ring.sinceDistance(distance) {
		h, diverges := divergenceHeight(entry.Index, index)
		if !diverges || h >= uint32(len(ffProof)) {
			continue
		}
		ffProof[h] = entry.Path[h]
		glog.V(4).Infof("merkle: reconcile patch height=%d from entry index=%d", h, entry.Index)
	}
	return ffProof, distance, nil
}

// patchRightmostProof propagates a mutation at newIndex (with freshly
// published path newPath) into the rightmost proof, so that the next
// Append computes the correct root. See SPEC_FULL.md §4.3 for the case
// analysis this implements.
func (m *MerkleRoll) patchRightmostProof(newIndex uint32, newPath []Node) {
	frontier := m.rightmostProof.Index
	if frontier == 0 {
		return
	}
	if newIndex == frontier-1 && len(newPath) > 0 {
		m.rightmostProof.Leaf = newPath[0]
	}
	// Even when newIndex is the current rightmost leaf, its ancestor at
	// the divergence height against frontier is recorded verbatim in
	// Proof (appendAt wrote it there as the left sibling of a
	// not-yet-completed subtree); mutating the leaf invalidates that
	// ancestor too, so this patch always applies, not just when
	// newIndex != frontier-1.
	h, diverges := divergenceHeight(newIndex, frontier)
	if !diverges || h >= uint32(len(m.rightmostProof.Proof)) {
		return
	}
	m.rightmostProof.Proof[h] = newPath[h]
}

// SetLeaf replaces the leaf at index with newLeaf, given a proof that was
// valid against root, which must be fewer than BufferSize mutations old.
func (m *MerkleRoll) SetLeaf(root, previousLeaf, newLeaf Node, proof []Node, index uint32) error {
	if uint64(index) >= m.capacity() {
		err := newErr(KindIndexOutOfBounds, "index %d >= capacity %d", index, m.capacity())
		m.record("set_leaf", err)
		return err
	}
	if uint32(len(proof)) != m.Depth {
		err := newErr(KindInvalidProof, "proof length %d != depth %d", len(proof), m.Depth)
		m.record("set_leaf", err)
		return err
	}

	ffProof, distance, err := m.reconcile(root, proof, index)
	if err != nil {
		m.record("set_leaf", err)
		return err
	}
	if m.Recorder != nil {
		m.Recorder.ObserveReconciliationDistance(distance)
	}

	currentRoot := m.ring.active().Root
	if Recompute(previousLeaf, ffProof, index) != currentRoot {
		err := newErr(KindLeafContentsModified, "leaf at index %d was modified since the proof was taken", index)
		m.record("set_leaf", err)
		return err
	}

	newPath, newRoot := recomputePath(newLeaf, ffProof, index)
	m.publish(newPath, newRoot, index)
	m.patchRightmostProof(index, newPath)

	glog.V(2).Infof("merkle: set_leaf index=%d distance=%d root=%x", index, distance, newRoot)
	m.record("set_leaf", nil)
	return nil
}

// ProveLeaf verifies that leaf is currently present at index, given a
// proof that was valid against root, which must be fewer than BufferSize
// mutations old. It publishes nothing.
func (m *MerkleRoll) ProveLeaf(root, leaf Node, proof []Node, index uint32) error {
	if uint64(index) >= m.capacity() {
		err := newErr(KindIndexOutOfBounds, "index %d >= capacity %d", index, m.capacity())
		m.record("prove_leaf", err)
		return err
	}
	if uint32(len(proof)) != m.Depth {
		err := newErr(KindInvalidProof, "proof length %d != depth %d", len(proof), m.Depth)
		m.record("prove_leaf", err)
		return err
	}

	ffProof, distance, err := m.reconcile(root, proof, index)
	if err != nil {
		m.record("prove_leaf", err)
		return err
	}
	if m.Recorder != nil {
		m.Recorder.ObserveReconciliationDistance(distance)
	}

	currentRoot := m.ring.active().Root
	if Recompute(leaf, ffProof, index) != currentRoot {
		err := newErr(KindLeafContentsModified, "leaf at index %d does not match current tree state", index)
		m.record("prove_leaf", err)
		return err
	}

	glog.V(2).Infof("merkle: prove_leaf index=%d distance=%d", index, distance)
	m.record("prove_leaf", nil)
	return nil
}

// spliceSubtree is the shared mechanism behind AppendSubtreeDirect and
// each piece of AppendSubtreePacked: it verifies that a depth-subDepth
// subtree's own rightmost-leaf proof recomputes to subtreeRoot, then
// computes what splicing that subtree in as a single node at height
// subDepth onto frontier (which must be aligned to a 2^subDepth boundary)
// would produce. It reads sibling values for heights >= subDepth from
// outerProof rather than m.rightmostProof.Proof directly, so that
// AppendSubtreePacked can validate a whole sequence of pieces against a
// simulated frontier before committing any of them. It neither mutates m
// nor publishes.
func (m *MerkleRoll) spliceSubtree(subtreeRoot, subtreeRightmostLeaf Node, subtreeRightmostIndex uint32, subtreeProof []Node, frontier uint32, outerProof []Node) (path []Node, root Node, globalIndex uint32, err error) {
	subDepth := uint32(len(subtreeProof))
	if subDepth > m.Depth {
		return nil, Node{}, 0, newErr(KindInvalidProof, "subtree depth %d exceeds tree depth %d", subDepth, m.Depth)
	}
	size := uint64(1) << uint64(subDepth)
	if uint64(frontier)%size != 0 {
		return nil, Node{}, 0, newErr(KindMisaligned, "frontier %d is not aligned to subtree size %d", frontier, size)
	}
	if uint64(frontier)+size > m.capacity() {
		return nil, Node{}, 0, newErr(KindTreeFull, "subtree of size %d does not fit before capacity %d", size, m.capacity())
	}
	if Recompute(subtreeRightmostLeaf, subtreeProof, subtreeRightmostIndex) != subtreeRoot {
		return nil, Node{}, 0, newErr(KindInvalidProof, "subtree proof does not recompute to its claimed root")
	}

	globalIndex = frontier + subtreeRightmostIndex
	innerPath, _ := recomputePath(subtreeRightmostLeaf, subtreeProof, subtreeRightmostIndex)

	path = make([]Node, m.Depth)
	copy(path[:subDepth], innerPath)

	node := subtreeRoot
	if subDepth < m.Depth {
		path[subDepth] = subtreeRoot
	}
	for h := subDepth; h < m.Depth; h++ {
		var sibling Node
		childIsLeft := bit(globalIndex, h) == 0
		if childIsLeft {
			sibling = EmptyRoot(h)
		} else {
			sibling = outerProof[h]
		}
		node = HashToParent(node, sibling, childIsLeft)
		if h+1 < m.Depth {
			path[h+1] = node
		}
	}
	return path, node, globalIndex, nil
}

// applySpliceToProof updates a rightmost-proof array (either the engine's
// real one, or a simulation used while planning a packed append) to
// reflect having just spliced a subtree of depth subDepth at globalIndex
// with the given freshly-computed path.
func applySpliceToProof(proof []Node, subDepth uint32, path []Node, globalIndex uint32, subtreeProof []Node) {
	for h := uint32(0); h < subDepth; h++ {
		proof[h] = subtreeProof[h]
	}
	for h := subDepth; h < uint32(len(proof)); h++ {
		if bit(globalIndex, h) == 0 {
			proof[h] = path[h]
		}
	}
}

// AppendSubtreeDirect splices a completed subtree of depth <= Depth onto
// the frontier, which must already be aligned to the subtree's size.
func (m *MerkleRoll) AppendSubtreeDirect(subtreeRoot, subtreeRightmostLeaf Node, subtreeRightmostIndex uint32, subtreeProof []Node) error {
	frontier := m.rightmostProof.Index
	path, root, globalIndex, err := m.spliceSubtree(subtreeRoot, subtreeRightmostLeaf, subtreeRightmostIndex, subtreeProof, frontier, m.rightmostProof.Proof)
	if err != nil {
		m.record("append_subtree_direct", err)
		return err
	}

	applySpliceToProof(m.rightmostProof.Proof, uint32(len(subtreeProof)), path, globalIndex, subtreeProof)
	m.publish(path, root, globalIndex)
	m.rightmostProof.Leaf = subtreeRightmostLeaf
	m.rightmostProof.Index = frontier + (uint32(1) << uint32(len(subtreeProof)))

	glog.V(2).Infof("merkle: append_subtree_direct frontier=%d depth=%d root=%x", frontier, len(subtreeProof), root)
	m.record("append_subtree_direct", nil)
	return nil
}

// AppendSubtreePacked densely appends a run of content that does not
// itself start subtree-aligned, by decomposing it (the caller's
// responsibility) into k complete pieces whose sizes sum to the new
// content and whose alignments match the frontier as it advances one
// piece at a time. Piece i is a complete subtree of depth
// len(subtreeProofs[i]); its rightmost index is therefore 2^depth_i - 1,
// not separately supplied.
//
// All k pieces are validated against a simulated frontier and a
// simulated copy of the rightmost proof before anything is published, so
// a failing piece anywhere in the sequence leaves the roll completely
// unchanged -- this operation is atomic like every other engine
// operation, not merely "no further pieces applied".
func (m *MerkleRoll) AppendSubtreePacked(subtreeProofs [][]Node, subtreeRightmostLeaves []Node, subtreeRoots []Node) error {
	k := len(subtreeProofs)
	if len(subtreeRightmostLeaves) != k || len(subtreeRoots) != k {
		err := newErr(KindInvalidProof, "parallel arrays have mismatched lengths: %d/%d/%d", k, len(subtreeRightmostLeaves), len(subtreeRoots))
		m.record("append_subtree_packed", err)
		return err
	}

	type plannedPiece struct {
		path        []Node
		root        Node
		globalIndex uint32
		frontier    uint32
	}
	plan := make([]plannedPiece, 0, k)

	simProof := make([]Node, len(m.rightmostProof.Proof))
	copy(simProof, m.rightmostProof.Proof)
	frontier := m.rightmostProof.Index

	for i := 0; i < k; i++ {
		depth := uint32(len(subtreeProofs[i]))
		rightmostIndex := uint32((uint64(1) << depth) - 1)
		path, root, globalIndex, err := m.spliceSubtree(subtreeRoots[i], subtreeRightmostLeaves[i], rightmostIndex, subtreeProofs[i], frontier, simProof)
		if err != nil {
			m.record("append_subtree_packed", err)
			return err
		}
		applySpliceToProof(simProof, depth, path, globalIndex, subtreeProofs[i])
		plan = append(plan, plannedPiece{path: path, root: root, globalIndex: globalIndex, frontier: frontier})
		frontier += uint32(uint64(1) << depth)
	}

	for i, piece := range plan {
		depth := uint32(len(subtreeProofs[i]))
		applySpliceToProof(m.rightmostProof.Proof, depth, piece.path, piece.globalIndex, subtreeProofs[i])
		m.publish(piece.path, piece.root, piece.globalIndex)
		m.rightmostProof.Leaf = subtreeRightmostLeaves[i]
		m.rightmostProof.Index = piece.frontier + (uint32(1) << depth)
	}

	glog.V(2).Infof("merkle: append_subtree_packed pieces=%d final_index=%d", k, m.rightmostProof.Index)
	m.record("append_subtree_packed", nil)
	return nil
}
