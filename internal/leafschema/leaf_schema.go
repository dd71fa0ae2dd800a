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

// Package leafschema computes the canonical leaf hash committed into a
// MerkleRoll, matching the scheme an on-chain compressed-NFT program uses
// to derive its LeafSchema digest: keccak256(owner || delegate ||
// nonce_le || keccak256(data)).
package leafschema

import (
	"encoding/binary"

	"github.com/concurrent-merkle-tree/cmt/merkle"
)

// Hash derives the leaf commitment for an asset owned by owner,
// delegated to delegate, minted at nonce, carrying data. nonce is a u128
// in the reference schema; since Go has no native 128-bit integer, it is
// split here into low and high 64-bit words and encoded little-endian
// over 16 bytes (nonceLo's bytes first, then nonceHi's), matching the
// reference schema's nonce.to_le_bytes() encoding.
func Hash(owner, delegate merkle.Node, nonceLo, nonceHi uint64, data []byte) merkle.Node {
	var nonceBytes [16]byte
	binary.LittleEndian.PutUint64(nonceBytes[:8], nonceLo)
	binary.LittleEndian.PutUint64(nonceBytes[8:], nonceHi)

	inner := merkle.HashBytes(data)

	buf := make([]byte, 0, 32+32+16+32)
	buf = append(buf, owner[:]...)
	buf = append(buf, delegate[:]...)
	buf = append(buf, nonceBytes[:]...)
	buf = append(buf, inner[:]...)
	return merkle.HashBytes(buf)
}
