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
	"math"

	"github.com/netobserv/aggradix/pkg/radix"
)

// walkPath descends toward p, collecting every node carrying a prefix on
// the way, including the landed node.
func (t *Table) walkPath(p radix.Prefix) []*Node {
	var stack []*Node
	n := t.Root()
	for n.bitlen < p.Bitlen() {
		if n.real {
			stack = append(stack, n)
		}
		var next ref
		if n.bitlen < t.maxbits && p.BitSet(n.bitlen) {
			next = n.right
		} else {
			next = n.left
		}
		if next == nilRef {
			return stack
		}
		n = t.pool.at(next)
	}
	if n.real {
		stack = append(stack, n)
	}
	return stack
}

// SearchBest returns the most specific stored prefix containing the query.
// A negative masklen means the host mask.
func (t *Table) SearchBest(network string, masklen int) (*Node, error) {
	p, err := radix.NewPrefix(network, masklen)
	if err != nil {
		return nil, err
	}
	stack := t.walkPath(p)
	for i := len(stack) - 1; i >= 0; i-- {
		n := stack[i]
		if n.bitlen <= p.Bitlen() && n.prefix.MatchLen(p, n.bitlen) {
			return n, nil
		}
	}
	return nil, nil
}

// SearchWorst returns the least specific stored prefix containing the query.
func (t *Table) SearchWorst(network string, masklen int) (*Node, error) {
	p, err := radix.NewPrefix(network, masklen)
	if err != nil {
		return nil, err
	}
	for _, n := range t.walkPath(p) {
		if n.bitlen <= p.Bitlen() && n.prefix.MatchLen(p, n.bitlen) {
			return n, nil
		}
	}
	return nil, nil
}

// SearchExact returns the node stored for exactly this prefix, or nil.
func (t *Table) SearchExact(network string, masklen int) (*Node, error) {
	p, err := radix.NewPrefix(network, masklen)
	if err != nil {
		return nil, err
	}
	n := t.Root()
	for n.bitlen < p.Bitlen() {
		var next ref
		if n.bitlen < t.maxbits && p.BitSet(n.bitlen) {
			next = n.right
		} else {
			next = n.left
		}
		if next == nilRef {
			return nil, nil
		}
		n = t.pool.at(next)
	}
	if n.bitlen > p.Bitlen() || !n.real {
		return nil, nil
	}
	if n.prefix.MatchLen(p, p.Bitlen()) {
		return n, nil
	}
	return nil, nil
}

// SubtreeSum totals every counter stored at and below the exact node for the
// given network, zero when no such node exists.
func (t *Table) SubtreeSum(network string, masklen int) (uint64, error) {
	n, err := t.SearchExact(network, masklen)
	if err != nil || n == nil {
		return 0, err
	}
	return t.subtreeSum(n.id), nil
}

// CoveredTop returns the node closest to the query range boundary: the
// deepest node on the query's path whose prefix still agrees with the query
// over the node's own bit length. After aggregation this is where the
// range's traffic has been attributed.
func (t *Table) CoveredTop(network string, masklen int) (*Node, error) {
	p, err := radix.NewPrefix(network, masklen)
	if err != nil {
		return nil, err
	}
	stack := t.walkPath(p)
	for i := len(stack) - 1; i >= 0; i-- {
		n := stack[i]
		if n.prefix.MatchLen(p, n.bitlen) {
			return n, nil
		}
	}
	return nil, nil
}

// WeightedCount sums src's counters along the branch of dst within
// dst/masklen, weighting each node by 1/2^(maxbits - bitlen) so that counts
// aggregated into shallower nodes contribute proportionally less.
func (t *Table) WeightedCount(src, dst string, masklen int) (float64, error) {
	p, err := radix.NewPrefix(dst, -1)
	if err != nil {
		return 0, err
	}
	head, err := t.CoveredTop(dst, masklen)
	if err != nil {
		return 0, err
	}
	count := 0.0
	for n := head; n != nil; {
		if c, ok := n.counts[src]; ok {
			count += float64(c) * math.Pow(0.5, float64(t.maxbits-n.bitlen))
		}
		if n.bitlen >= t.maxbits {
			break
		}
		var next ref
		if p.BitSet(n.bitlen) {
			next = n.right
		} else {
			next = n.left
		}
		n = t.pool.at(next)
	}
	return count, nil
}
