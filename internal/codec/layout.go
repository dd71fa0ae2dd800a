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

// Package codec implements the fixed, versionless binary layout external
// programs use to read and write a MerkleRoll's arena (spec §6):
// little-endian, fields packed in declaration order, with no padding except
// each change-log record's fixed tail padding to a multiple of 8. D and B
// are compile-time constants shared out-of-band between producer and
// consumer; this package takes them as explicit parameters since Go has
// no const generics to recover them from a type.
//
// This stays on encoding/binary rather than a general-purpose
// serialization framework (protobuf, msgpack, gob) on purpose: every one
// of those adds field tags, length prefixes, or struct padding of its
// own, which would silently stop matching the packed, fixed-offset layout
// the spec nails down byte-for-byte. See DESIGN.md.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/concurrent-merkle-tree/cmt/merkle"
)

// changeLogRecordSize returns the encoded size of one change-log entry:
// root (32) + path (32*depth) + index (4), padded up to a multiple of 8
// so that B consecutive entries stay 8-byte aligned.
func changeLogRecordSize(depth uint32) uint32 {
	raw := 32 + 32*depth + 4
	return (raw + 7) &^ 7
}

// Size returns the total encoded size in bytes for a roll of the given
// depth and buffer capacity. depth and bufferSize (B) are not themselves
// part of the encoding -- spec §6 treats them as compile-time constants
// known out-of-band to both producer and consumer.
func Size(depth, bufferSize uint32) uint32 {
	return 8 + 8 + 8 + bufferSize*changeLogRecordSize(depth) + 32*depth + 4 + 32
}

// ErrLayoutMismatch is returned by Decode when the supplied bytes don't
// match the expected size for (depth, bufferSize). A mismatch here is an
// unrecoverable configuration error per spec §6: the producer and
// consumer disagree about D or B.
var ErrLayoutMismatch = fmt.Errorf("codec: encoded length does not match expected layout")

// RollState is the subset of merkle.MerkleRoll this package knows how to
// (de)serialize: the three scalar counters from spec §6
// (SequenceNumber, ActiveIndex, BufferSize), every ring slot, and the
// rightmost proof. It exists so this package doesn't need access to
// MerkleRoll's unexported ring internals; callers convert to/from it at
// the MerkleRoll boundary. The ring's capacity (B) is not a field here:
// it is always equal to len(ChangeLogs), and is supplied out-of-band to
// Encode/Decode rather than serialized, per spec §6.
type RollState struct {
	SequenceNumber uint64
	ActiveIndex    uint32
	BufferSize     uint32 // number of valid entries in the ring (<= len(ChangeLogs)), spec §3/§6
	ChangeLogs     []ChangeLogRecord
	RightmostProof []merkle.Node
	RightmostIndex uint32
	RightmostLeaf  merkle.Node
}

// ChangeLogRecord is one ring slot: a root, its path, and the mutated
// index, exactly as spec §6 describes.
type ChangeLogRecord struct {
	Root  merkle.Node
	Path  []merkle.Node
	Index uint32
}

// FromRoll captures roll's complete state as a RollState, ready for
// Encode.
func FromRoll(roll *merkle.MerkleRoll) RollState {
	entries, activeIndex, validCount := roll.Snapshot()
	rightmost := roll.GetRightmostProof()

	logs := make([]ChangeLogRecord, len(entries))
	for i, e := range entries {
		logs[i] = ChangeLogRecord{Root: e.Root, Path: e.Path, Index: e.Index}
	}

	return RollState{
		SequenceNumber: roll.SequenceNumber,
		ActiveIndex:    activeIndex,
		BufferSize:     validCount,
		ChangeLogs:     logs,
		RightmostProof: rightmost.Proof,
		RightmostIndex: rightmost.Index,
		RightmostLeaf:  rightmost.Leaf,
	}
}

// ToRoll restores state onto roll, which must already be constructed
// with matching Depth/BufferSize (e.g. via merkle.NewMerkleRoll). It
// bypasses Initialize/InitializeWithRoot validation, so callers should
// only pass state obtained from FromRoll+Encode+Decode of a roll with
// the identical configuration.
func ToRoll(roll *merkle.MerkleRoll, state RollState) error {
	entries := make([]merkle.ChangeLog, len(state.ChangeLogs))
	for i, rec := range state.ChangeLogs {
		entries[i] = merkle.ChangeLog{Root: rec.Root, Path: rec.Path, Index: rec.Index}
	}
	rightmost := merkle.RightmostProof{
		Proof: state.RightmostProof,
		Index: state.RightmostIndex,
		Leaf:  state.RightmostLeaf,
	}
	return roll.Restore(entries, state.ActiveIndex, state.BufferSize, rightmost, state.SequenceNumber)
}

// Encode serializes state into the layout described in spec §6. depth
// and bufferSize must match len(state.RightmostProof) and
// len(state.ChangeLogs) respectively; mismatches are a programmer error
// and panic, since this is an internal boundary, not an untrusted input.
func Encode(state RollState, depth, bufferSize uint32) []byte {
	if uint32(len(state.RightmostProof)) != depth {
		panic("codec: rightmost proof length does not match depth")
	}
	if uint32(len(state.ChangeLogs)) != bufferSize {
		panic("codec: change log count does not match buffer size")
	}

	buf := make([]byte, Size(depth, bufferSize))
	off := 0

	binary.LittleEndian.PutUint64(buf[off:], state.SequenceNumber)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(state.ActiveIndex))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(state.BufferSize))
	off += 8

	recSize := int(changeLogRecordSize(depth))
	for _, cl := range state.ChangeLogs {
		rec := buf[off : off+recSize]
		copy(rec[0:32], cl.Root[:])
		for h, node := range cl.Path {
			copy(rec[32+h*32:32+(h+1)*32], node[:])
		}
		binary.LittleEndian.PutUint32(rec[32+32*int(depth):], cl.Index)
		off += recSize
	}

	for _, node := range state.RightmostProof {
		copy(buf[off:off+32], node[:])
		off += 32
	}
	binary.LittleEndian.PutUint32(buf[off:], state.RightmostIndex)
	off += 4
	copy(buf[off:off+32], state.RightmostLeaf[:])
	off += 32

	return buf
}

// Decode parses data as a roll of the given depth and buffer size,
// returning ErrLayoutMismatch if data isn't exactly the expected length.
func Decode(data []byte, depth, bufferSize uint32) (RollState, error) {
	want := Size(depth, bufferSize)
	if uint32(len(data)) != want {
		return RollState{}, fmt.Errorf("%w: got %d bytes, want %d for depth=%d buffer=%d", ErrLayoutMismatch, len(data), want, depth, bufferSize)
	}

	off := 0
	state := RollState{}
	state.SequenceNumber = binary.LittleEndian.Uint64(data[off:])
	off += 8
	state.ActiveIndex = uint32(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	state.BufferSize = uint32(binary.LittleEndian.Uint64(data[off:]))
	off += 8

	recSize := int(changeLogRecordSize(depth))
	state.ChangeLogs = make([]ChangeLogRecord, bufferSize)
	for i := range state.ChangeLogs {
		rec := data[off : off+recSize]
		var cl ChangeLogRecord
		copy(cl.Root[:], rec[0:32])
		cl.Path = make([]merkle.Node, depth)
		for h := range cl.Path {
			copy(cl.Path[h][:], rec[32+h*32:32+(h+1)*32])
		}
		cl.Index = binary.LittleEndian.Uint32(rec[32+32*int(depth):])
		state.ChangeLogs[i] = cl
		off += recSize
	}

	state.RightmostProof = make([]merkle.Node, depth)
	for h := range state.RightmostProof {
		copy(state.RightmostProof[h][:], data[off:off+32])
		off += 32
	}
	state.RightmostIndex = binary.LittleEndian.Uint32(data[off:])
	off += 4
	copy(state.RightmostLeaf[:], data[off:off+32])
	off += 32

	return state, nil
}
