/*
 * Copyright (C) 2022 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package aggradix

import (
	"fmt"

	"github.com/netobserv/aggradix/pkg/radix"
	log "github.com/sirupsen/logrus"
)

// hotThreshold is the self-scaling bar above which a subtree is protected
// from aggregation: a fraction of all observed packets, floored at a
// configured minimum.
func (t *Table) hotThreshold() uint64 {
	thr := uint64(t.cfg.HotFraction * float64(t.packets))
	if thr < t.cfg.HotMinimum {
		thr = t.cfg.HotMinimum
	}
	return thr
}

// Reclaim frees pool slots until at least n are available. Victims are
// least-recently-used leaves; hot leaves and hot surroundings are requeued
// up to the configured retry budget, after which ErrPoolExhausted is
// returned. Every merge conserves the total of all counters.
func (t *Table) Reclaim(n int) error {
	if n > t.pool.capacity() {
		t.exhausted = true
		return fmt.Errorf("%w: %d slots requested from a pool of %d", ErrPoolExhausted, n, t.pool.capacity())
	}
	attempts := 0
	for t.pool.freeCnt < n {
		thr := t.hotThreshold()

		leafID := t.pool.nextActiveLeaf()
		if leafID == nilRef {
			t.exhausted = true
			return fmt.Errorf("%w: no eligible leaf to aggregate", ErrPoolExhausted)
		}
		leaf := t.pool.at(leafID)

		// protect hot leaves while the retry budget lasts
		if leaf.Total() > thr && attempts < t.cfg.ReclaimRetries {
			t.pool.touch(leafID)
			metrics.requeues.Inc()
			attempts++
			continue
		}

		branch := t.pool.at(leaf.parent)
		if branch == nil {
			log.Errorf("BUG. pool leaf %s has no parent", leaf)
			t.pool.release(leafID)
			continue
		}
		sibID := branch.left
		if sibID == leafID {
			sibID = branch.right
		}

		sibHot := t.subtreeSum(sibID) > thr
		branchHot := branch.id == t.pool.rootID || branch.Total() > thr

		switch {
		case branchHot && sibHot:
			// neither side is safe to collapse
			if attempts >= t.cfg.ReclaimRetries {
				t.exhausted = true
				return fmt.Errorf("%w: retry budget of %d spent with only hot subtrees left", ErrPoolExhausted, t.cfg.ReclaimRetries)
			}
			t.pool.touch(leafID)
			metrics.requeues.Inc()
			attempts++

		case sibHot:
			// fold the leaf and its branch point into the grandparent,
			// keeping the hot sibling in place
			t.leafFree(leaf)
			metrics.merges.WithLabelValues("leaf").Inc()

		default:
			// the whole branch is cold: collapse it into its top node
			t.subtreeMerge(branch.id)
			metrics.merges.WithLabelValues("subtree").Inc()
		}
	}
	t.exhausted = false
	metrics.poolFree.Set(float64(t.pool.freeCnt))
	return nil
}

// leafFree merges the leaf's and its branch-point parent's counters into
// the grandparent, splices the sibling directly under the grandparent, and
// releases both nodes. Net effect: two more free slots.
func (t *Table) leafFree(leaf *Node) {
	branch := t.pool.at(leaf.parent)
	grand := t.pool.at(branch.parent)
	sibID := branch.left
	if sibID == leaf.id {
		sibID = branch.right
	}

	t.materialize(grand)
	mergeCounts(grand.counts, leaf.counts)
	mergeCounts(grand.counts, branch.counts)

	t.pool.at(sibID).parent = grand.id
	if grand.left == branch.id {
		grand.left = sibID
	} else {
		grand.right = sibID
	}

	t.pool.release(leaf.id)
	t.pool.release(branch.id)
	metrics.reclaimed.Add(2)
}

// subtreeMerge sums the whole subtree's counters into its top node,
// post-order, and releases every descendant.
func (t *Table) subtreeMerge(topID ref) {
	top := t.pool.at(topID)
	t.materialize(top)
	freed := t.mergeBelow(top, top.left) + t.mergeBelow(top, top.right)
	top.left, top.right = nilRef, nilRef
	metrics.reclaimed.Add(float64(freed))
}

func (t *Table) mergeBelow(dst *Node, r ref) int {
	if r == nilRef {
		return 0
	}
	n := t.pool.at(r)
	freed := t.mergeBelow(dst, n.left) + t.mergeBelow(dst, n.right)
	mergeCounts(dst.counts, n.counts)
	t.pool.release(r)
	return freed + 1
}

// subtreeSum totals every counter at and below r.
func (t *Table) subtreeSum(r ref) uint64 {
	if r == nilRef {
		return 0
	}
	n := t.pool.at(r)
	return n.Total() + t.subtreeSum(n.left) + t.subtreeSum(n.right)
}

// materialize turns a glue node into a real one so it can carry merged
// counters: its address is any real descendant's, masked to the glue's bit
// length.
func (t *Table) materialize(n *Node) {
	if n.real {
		return
	}
	d := t.firstRealBelow(n)
	if d == nil {
		log.Errorf("BUG. glue node at bit %d has no real descendant", n.bitlen)
		n.counts = make(map[string]uint64)
		n.real = true
		return
	}
	p, err := radix.PrefixFromBytes(d.prefix.Bytes(), n.bitlen)
	if err != nil {
		log.Errorf("BUG. cannot mask %s to %d bits: %v", d.prefix, n.bitlen, err)
		return
	}
	n.prefix = p
	n.real = true
	n.counts = make(map[string]uint64)
}

func (t *Table) firstRealBelow(n *Node) *Node {
	for _, r := range []ref{n.left, n.right} {
		if r == nilRef {
			continue
		}
		c := t.pool.at(r)
		if c.real {
			return c
		}
		if d := t.firstRealBelow(c); d != nil {
			return d
		}
	}
	return nil
}
