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

package leafschema

import (
	"testing"

	"github.com/concurrent-merkle-tree/cmt/merkle"
)

func TestHashIsDeterministic(t *testing.T) {
	owner := merkle.HashBytes([]byte("owner"))
	delegate := merkle.HashBytes([]byte("delegate"))
	data := []byte("asset metadata")

	got := Hash(owner, delegate, 7, 0, data)
	want := Hash(owner, delegate, 7, 0, data)
	if got != want {
		t.Fatalf("Hash is not deterministic: %x != %x", got, want)
	}
}

func TestHashDistinguishesInputs(t *testing.T) {
	owner := merkle.HashBytes([]byte("owner"))
	delegate := merkle.HashBytes([]byte("delegate"))
	other := merkle.HashBytes([]byte("someone-else"))
	data := []byte("asset metadata")

	base := Hash(owner, delegate, 7, 0, data)

	cases := map[string]merkle.Node{
		"different owner":      Hash(other, delegate, 7, 0, data),
		"different delegate":   Hash(owner, other, 7, 0, data),
		"different nonce lo":   Hash(owner, delegate, 8, 0, data),
		"different nonce hi":   Hash(owner, delegate, 7, 1, data),
		"different data":       Hash(owner, delegate, 7, 0, []byte("other metadata")),
	}
	for name, got := range cases {
		if got == base {
			t.Errorf("%s: expected hash to differ from base, got same value %x", name, got)
		}
	}
}

func TestHashNonceEndianness(t *testing.T) {
	owner := merkle.HashBytes([]byte("owner"))
	delegate := merkle.HashBytes([]byte("delegate"))
	data := []byte("asset metadata")

	// Distinct nonces must not collide.
	a := Hash(owner, delegate, 1, 0, data)
	b := Hash(owner, delegate, 256, 0, data)
	if a == b {
		t.Fatal("nonce encoding collided across distinct values")
	}

	// Nonce 1 must be encoded as 16 little-endian bytes (0x01 first); an
	// endianness swap would change this digest.
	inner := merkle.HashBytes(data)
	preimage := append([]byte{}, owner[:]...)
	preimage = append(preimage, delegate[:]...)
	preimage = append(preimage, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	preimage = append(preimage, inner[:]...)
	if want := merkle.HashBytes(preimage); a != want {
		t.Fatalf("Hash with nonce 1 = %x, want little-endian preimage digest %x", a, want)
	}

	// A nonce whose low word is 0 but high word is nonzero must hash
	// differently than one with the same low word and a zero high word:
	// this is the case an 8-byte-truncated encoding would silently drop.
	c := Hash(owner, delegate, 0, 0, data)
	d := Hash(owner, delegate, 0, 1, data)
	if c == d {
		t.Fatal("nonce high word is not contributing to the hash")
	}
}
