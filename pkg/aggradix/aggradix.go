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

// Package aggradix implements a radix tree bounded to a fixed node budget.
// Nodes are recycled through an LRU-ordered pool; under memory pressure,
// low-traffic subtrees are merged upward into their ancestors so that the
// sum of all per-source packet counters is preserved while attribution
// granularity coarsens.
//
// Like pkg/radix, the core is single-writer with best-effort concurrent
// read safety only.
package aggradix

import (
	"errors"
	"fmt"

	"github.com/netobserv/aggradix/pkg/api"
	"github.com/netobserv/aggradix/pkg/radix"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrPoolExhausted is returned when reclaim cannot free the requested
	// capacity even after exhausting its retry budget. It signals a pool
	// too small for the observed traffic, never a silent nil node.
	ErrPoolExhausted = errors.New("node pool exhausted")

	// ErrOutOfRange is returned for addresses outside the monitored root
	// prefix or of the wrong family.
	ErrOutOfRange = errors.New("address outside the monitored root prefix")
)

// Table is a bounded, self-aggregating prefix table over one address
// family, rooted at a configured prefix.
type Table struct {
	cfg     api.Aggradix
	family  radix.Family
	maxbits int
	pool    *pool
	packets uint64

	// exhausted records whether the last reclaim failed; cleared by the
	// next successful one. Surfaced through Err for health checks.
	exhausted bool
}

// New builds a Table from its configuration. The pool holds
// cfg.MaxNodes - 2 recyclable slots: the root is pinned outside the pool
// and one insertion may need both a leaf and a glue node.
func New(cfg api.Aggradix) (*Table, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid aggradix config: %w", err)
	}
	rootPrefix, err := radix.ParsePrefix(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid root prefix %q: %w", cfg.Root, err)
	}
	t := &Table{
		cfg:     cfg,
		family:  rootPrefix.Family(),
		maxbits: rootPrefix.Family().MaxBits(),
		pool:    newPool(cfg.MaxNodes - 2),
	}
	root := t.pool.at(t.pool.rootID)
	root.prefix = rootPrefix
	root.real = true
	root.bitlen = rootPrefix.Bitlen()
	root.counts = make(map[string]uint64)
	log.Debugf("aggradix table created: root=%s, pool capacity=%d", rootPrefix, t.pool.capacity())
	return t, nil
}

// Root returns the pinned root node.
func (t *Table) Root() *Node { return t.pool.at(t.pool.rootID) }

// Family returns the address family of the monitored space.
func (t *Table) Family() radix.Family { return t.family }

// FreeNodes returns the number of free pool slots.
func (t *Table) FreeNodes() int { return t.pool.freeCnt }

// AllocatedNodes returns the number of allocated pool slots, the root not
// included.
func (t *Table) AllocatedNodes() int { return t.pool.allocated() }

// PacketCount returns the total number of observed packets.
func (t *Table) PacketCount() uint64 { return t.packets }

// Err reports whether the table is in a degraded state: the last reclaim
// could not free the requested capacity.
func (t *Table) Err() error {
	if t.exhausted {
		return ErrPoolExhausted
	}
	return nil
}

// Observe records one packet from src to dst: the host route for dst is
// found or inserted and its counter for src is bumped.
func (t *Table) Observe(src, dst string) (*Node, error) {
	p, err := radix.NewPrefix(dst, -1)
	if err != nil {
		return nil, err
	}
	node, err := t.findOrInsert(p)
	if err != nil {
		return nil, err
	}
	node.counts[src]++
	t.packets++
	t.pool.touch(node.id)
	metrics.packets.Inc()
	return node, nil
}

// FindOrInsert returns the node for the given network, inserting it when
// absent. A negative masklen means the host mask.
func (t *Table) FindOrInsert(network string, masklen int) (*Node, error) {
	p, err := radix.NewPrefix(network, masklen)
	if err != nil {
		return nil, err
	}
	return t.findOrInsert(p)
}

func (t *Table) checkRange(p radix.Prefix) error {
	if p.Family() != t.family {
		return fmt.Errorf("%w: %s is not %s", ErrOutOfRange, p, t.family)
	}
	if !t.Root().prefix.Contains(p) {
		return fmt.Errorf("%w: %s not in %s", ErrOutOfRange, p, t.Root().prefix)
	}
	return nil
}

// findOrInsert is the pool-backed variant of the radix insertion: same
// descent, differing-bit computation and glue synthesis, but nodes come
// from the pool and capacity is reclaimed up front.
func (t *Table) findOrInsert(p radix.Prefix) (*Node, error) {
	if err := t.checkRange(p); err != nil {
		return nil, err
	}
	// an insertion may need a leaf and a glue node
	if t.pool.freeCnt < 2 {
		if err := t.Reclaim(2); err != nil {
			return nil, err
		}
	}

	bitlen := p.Bitlen()
	n := t.Root()
	for n.bitlen < bitlen || !n.real {
		var next ref
		if n.bitlen < t.maxbits && p.BitSet(n.bitlen) {
			next = n.right
		} else {
			next = n.left
		}
		if next == nilRef {
			break
		}
		n = t.pool.at(next)
	}

	landPrefix := n.prefix
	differ := p.CommonPrefixLen(landPrefix, min(n.bitlen, bitlen))

	for pr := n.parent; pr != nilRef && t.pool.at(pr).bitlen >= differ; {
		n = t.pool.at(pr)
		pr = n.parent
	}

	if differ == bitlen && n.bitlen == bitlen {
		if !n.real {
			// promote glue in place; its children stay attached
			n.prefix = p
			n.real = true
			n.counts = make(map[string]uint64)
		}
		return n, nil
	}

	nn, err := t.allocNode(p)
	if err != nil {
		return nil, err
	}

	switch {
	case n.bitlen == differ:
		nn.parent = n.id
		if n.bitlen < t.maxbits && p.BitSet(n.bitlen) {
			n.right = nn.id
		} else {
			n.left = nn.id
		}

	case bitlen == differ:
		if bitlen < t.maxbits && landPrefix.BitSet(bitlen) {
			nn.right = n.id
		} else {
			nn.left = n.id
		}
		nn.parent = n.parent
		t.replaceChild(n.parent, n.id, nn.id)
		n.parent = nn.id

	default:
		g, err := t.allocGlue(differ)
		if err != nil {
			return nil, err
		}
		g.parent = n.parent
		if differ < t.maxbits && p.BitSet(differ) {
			g.right, g.left = nn.id, n.id
		} else {
			g.right, g.left = n.id, nn.id
		}
		nn.parent = g.id
		t.replaceChild(n.parent, n.id, g.id)
		n.parent = g.id
	}
	return nn, nil
}

func (t *Table) allocNode(p radix.Prefix) (*Node, error) {
	n := t.pool.allocate()
	if n == nil {
		log.Errorf("BUG. pool allocation failed after reclaim, free=%d", t.pool.freeCnt)
		return nil, ErrPoolExhausted
	}
	n.prefix = p
	n.real = true
	n.bitlen = p.Bitlen()
	n.counts = make(map[string]uint64)
	metrics.poolFree.Set(float64(t.pool.freeCnt))
	return n, nil
}

func (t *Table) allocGlue(bitlen int) (*Node, error) {
	n := t.pool.allocate()
	if n == nil {
		log.Errorf("BUG. pool allocation failed after reclaim, free=%d", t.pool.freeCnt)
		return nil, ErrPoolExhausted
	}
	n.bitlen = bitlen
	metrics.poolFree.Set(float64(t.pool.freeCnt))
	return n, nil
}

func (t *Table) replaceChild(parent, old, repl ref) {
	pn := t.pool.at(parent)
	if pn == nil {
		log.Errorf("BUG. splicing %d over %d under a missing parent", repl, old)
		return
	}
	if pn.right == old {
		pn.right = repl
	} else {
		pn.left = repl
	}
}

// Each walks every node carrying a prefix, root included, depth first.
func (t *Table) Each(fn func(*Node) bool) {
	var stack []ref
	r := t.pool.rootID
	for r != nilRef {
		n := t.pool.at(r)
		if n.real {
			if !fn(n) {
				return
			}
		}
		switch {
		case n.left != nilRef:
			if n.right != nilRef {
				stack = append(stack, n.right)
			}
			r = n.left
		case n.right != nilRef:
			r = n.right
		case len(stack) > 0:
			r = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		default:
			r = nilRef
		}
	}
}

// Records returns the persisted form of the table: every prefix with its
// counters, in iteration order.
func (t *Table) Records() []radix.Record[string, uint64] {
	var records []radix.Record[string, uint64]
	t.Each(func(n *Node) bool {
		records = append(records, radix.Record[string, uint64]{Prefix: n.String(), Data: n.counts})
		return true
	})
	return records
}

func mergeCounts(dst, src map[string]uint64) {
	for k, v := range src {
		dst[k] += v
	}
}
