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

// ChangeLog records the result of one mutation: the resulting root, the
// full path from the mutated leaf up to (but not including) the root, and
// the mutated leaf's index. Path[0] is the leaf itself; Path[h] for
// h < Depth-1 is the leaf's ancestor at height h.
type ChangeLog struct {
	Root  Node
	Path  []Node
	Index uint32
}

// clone returns a deep copy, so callers can hand out a ChangeLog without
// letting them mutate ring-buffer storage through the returned Path slice.
func (c ChangeLog) clone() ChangeLog {
	path := make([]Node, len(c.Path))
	copy(path, c.Path)
	return ChangeLog{Root: c.Root, Path: path, Index: c.Index}
}

// changeLogRing is a fixed-size circular buffer of the most recent
// ChangeLogs. activeIndex names the newest entry; walking backward from
// it for up to bufferSize steps recovers history, newest first.
type changeLogRing struct {
	depth      uint32
	entries    []ChangeLog
	activeIdx  uint32
	bufferSize uint32 // number of valid entries, capped at len(entries)
}

func newChangeLogRing(depth, capacity uint32) *changeLogRing {
	entries := make([]ChangeLog, capacity)
	for i := range entries {
		entries[i] = ChangeLog{Path: make([]Node, depth)}
	}
	return &changeLogRing{depth: depth, entries: entries}
}

func (r *changeLogRing) capacity() uint32 { return uint32(len(r.entries)) }

// active returns the newest published change log.
func (r *changeLogRing) active() *ChangeLog {
	return &r.entries[r.activeIdx]
}

// publish advances the cursor and writes a new entry, capping bufferSize
// at capacity. It does not touch the sequence number; callers own that.
func (r *changeLogRing) publish(entry ChangeLog) {
	r.activeIdx = (r.activeIdx + 1) % r.capacity()
	r.entries[r.activeIdx] = entry
	if r.bufferSize < r.capacity() {
		r.bufferSize++
	}
}

// findByRoot walks backward from the active entry looking for one whose
// Root equals root. It returns the entry and how many steps back from
// active it was found at (0 == the active entry itself), or ok == false
// if no entry within the valid buffer_size window matches.
func (r *changeLogRing) findByRoot(root Node) (entry ChangeLog, distance uint32, ok bool) {
	cap := r.capacity()
	for d := uint32(0); d < r.bufferSize; d++ {
		idx := (r.activeIdx + cap - d) % cap
		if r.entries[idx].Root == root {
			return r.entries[idx], d, true
		}
	}
	return ChangeLog{}, 0, false
}

// sinceDistance returns every entry strictly newer than the one found at
// distance d back from active, in chronological (oldest-first) order.
// If d == 0 (the matched entry is the active one), the slice is empty.
func (r *changeLogRing) sinceDistance(d uint32) []ChangeLog {
	if d == 0 {
		return nil
	}
	cap := r.capacity()
	out := make([]ChangeLog, 0, d)
	for back := d - 1; ; back-- {
		idx := (r.activeIdx + cap - back) % cap
		out = append(out, r.entries[idx])
		if back == 0 {
			break
		}
	}
	return out
}
