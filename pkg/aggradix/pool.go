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
	"github.com/netobserv/aggradix/pkg/radix"
)

type ref = int32

const nilRef ref = -1

// Node is one entry of the pool arena. Identity (id) is scoped to the
// owning pool. Recyclable nodes additionally sit on an intrusive recency
// ring: sentinel.next is the most recently used node, sentinel.prev the
// least recently used.
type Node struct {
	id     ref
	prefix radix.Prefix
	real   bool
	bitlen int

	parent ref
	left   ref
	right  ref

	counts map[string]uint64

	free bool
	prev ref
	next ref
}

// Prefix returns the node's prefix; the zero Prefix for glue nodes.
func (n *Node) Prefix() radix.Prefix { return n.prefix }

// Bitlen returns the depth at which the node's children diverge.
func (n *Node) Bitlen() int { return n.bitlen }

// Network returns the textual network address of the node's prefix.
func (n *Node) Network() string { return n.prefix.Network() }

func (n *Node) String() string { return n.prefix.String() }

// Counts returns the live per-source packet counters of the node.
func (n *Node) Counts() map[string]uint64 { return n.counts }

// Total returns the node's own counter total, not counting descendants.
func (n *Node) Total() uint64 {
	var sum uint64
	for _, v := range n.counts {
		sum += v
	}
	return sum
}

// pool is a fixed arena of nodes. Slots 0..capacity-1 are recyclable and
// linked on the recency ring; slot capacity is the pinned root, slot
// capacity+1 the ring sentinel. Free slots are flagged, not segregated:
// they stay on the ring, parked at the least-recently-used end.
type pool struct {
	arena   []Node
	rootID  ref
	sent    ref
	freeCnt int

	// cursor remembers where the last active-leaf scan stopped, so
	// repeated reclaim calls resume instead of rescanning from the
	// most-recently-used end.
	cursor ref
}

func newPool(capacity int) *pool {
	p := &pool{
		arena:   make([]Node, capacity+2),
		rootID:  ref(capacity),
		sent:    ref(capacity + 1),
		freeCnt: capacity,
	}
	for i := range p.arena {
		n := &p.arena[i]
		n.id = ref(i)
		n.parent, n.left, n.right = nilRef, nilRef, nilRef
		n.free = true
	}
	// link the recyclable slots into the ring
	for i := 0; i < capacity; i++ {
		p.arena[i].prev = ref(i - 1)
		p.arena[i].next = ref(i + 1)
	}
	s := p.at(p.sent)
	s.free = false
	if capacity > 0 {
		s.next = 0
		s.prev = ref(capacity - 1)
		p.arena[0].prev = p.sent
		p.arena[capacity-1].next = p.sent
	} else {
		s.next = p.sent
		s.prev = p.sent
	}
	root := p.at(p.rootID)
	root.free = false
	root.prev, root.next = nilRef, nilRef
	p.cursor = p.sent
	return p
}

func (p *pool) at(r ref) *Node {
	if r < 0 || int(r) >= len(p.arena) {
		return nil
	}
	return &p.arena[r]
}

func (p *pool) capacity() int { return len(p.arena) - 2 }

func (p *pool) allocated() int { return p.capacity() - p.freeCnt }

func (p *pool) unlink(n *Node) {
	p.at(n.prev).next = n.next
	p.at(n.next).prev = n.prev
}

func (p *pool) pushFront(n *Node) {
	s := p.at(p.sent)
	n.prev = p.sent
	n.next = s.next
	p.at(s.next).prev = n.id
	s.next = n.id
}

func (p *pool) pushBack(n *Node) {
	s := p.at(p.sent)
	n.next = p.sent
	n.prev = s.prev
	p.at(s.prev).next = n.id
	s.prev = n.id
}

// touch promotes a node to most recently used. O(1).
func (p *pool) touch(r ref) {
	if r == p.rootID || r == p.sent {
		return
	}
	n := p.at(r)
	if n == nil || n.free {
		return
	}
	p.unlink(n)
	p.pushFront(n)
}

// allocate takes a free slot, scanning from the least-recently-used end
// where freed slots are parked, and promotes it to most recently used.
// O(1) amortized, O(capacity) worst case.
func (p *pool) allocate() *Node {
	for r := p.at(p.sent).prev; r != p.sent; r = p.at(r).prev {
		n := p.at(r)
		if !n.free {
			continue
		}
		n.free = false
		n.parent, n.left, n.right = nilRef, nilRef, nilRef
		n.prefix = radix.Prefix{}
		n.real = false
		n.counts = nil
		p.unlink(n)
		p.pushFront(n)
		p.freeCnt--
		return n
	}
	return nil
}

// release resets a node back to the free state and parks it at the
// least-recently-used end.
func (p *pool) release(r ref) {
	n := p.at(r)
	if n == nil || n.free || r == p.rootID || r == p.sent {
		return
	}
	n.prefix = radix.Prefix{}
	n.real = false
	n.bitlen = 0
	n.parent, n.left, n.right = nilRef, nilRef, nilRef
	n.counts = nil
	n.free = true
	p.unlink(n)
	p.pushBack(n)
	p.freeCnt++
}

// nextActiveLeaf returns the next eviction candidate: an allocated node
// with no children, scanned from the persistent cursor toward the
// most-recently-used end. Returns nilRef after a full circle without a hit.
func (p *pool) nextActiveLeaf() ref {
	r := p.cursor
	for i := 0; i <= len(p.arena); i++ {
		r = p.at(r).prev
		if r == p.sent {
			continue
		}
		n := p.at(r)
		if n.free || n.left != nilRef || n.right != nilRef {
			continue
		}
		p.cursor = r
		return r
	}
	return nilRef
}
