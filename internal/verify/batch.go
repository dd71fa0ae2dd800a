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

// Package verify fans a batch of independent proof verifications out
// across goroutines. ProveLeaf only reads ring state (it never mutates
// the roll), so unlike Append/SetLeaf/AppendSubtree* it is safe to call
// concurrently from multiple goroutines against the same *MerkleRoll.
package verify

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/concurrent-merkle-tree/cmt/merkle"
)

// Claim is one leaf whose membership should be checked against root.
type Claim struct {
	Root  merkle.Node
	Leaf  merkle.Node
	Proof []merkle.Node
	Index uint32
}

// Batch verifies every claim concurrently against roll, one goroutine per
// claim, and returns the first error encountered (wrapped with the
// offending claim's index). A failing claim does not stop the other
// checks, and ctx is not consulted by them. It returns nil only if every
// claim verified.
func Batch(ctx context.Context, roll *merkle.MerkleRoll, claims []Claim) error {
	g, _ := errgroup.WithContext(ctx)
	for _, c := range claims {
		c := c
		g.Go(func() error {
			if err := roll.ProveLeaf(c.Root, c.Leaf, c.Proof, c.Index); err != nil {
				return fmt.Errorf("claim at index %d: %w", c.Index, err)
			}
			return nil
		})
	}
	return g.Wait()
}
