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

// Package radix implements a compressed binary trie (Patricia tree) over
// IPv4 and IPv6 prefixes, with longest/shortest prefix, exact, covered and
// covering lookups, as used for routing-table style matching.
//
// The core is single-writer: mutations take no locks and concurrent readers
// may observe transient states, but never a dangling link. Iteration detects
// mutation through a generation counter and fails fast instead of returning
// a partial sequence.
package radix

import (
	log "github.com/sirupsen/logrus"
)

// Radix owns one trie per address family and dispatches every operation to
// the trie matching the input's detected family.
type Radix[K comparable, V any] struct {
	v4, v6 *tree[K, V]
	gen    uint64
}

// New returns an empty table. K and V parameterize the per-node payload
// mapping; use New[string, uint64] for packet counters keyed by source.
func New[K comparable, V any]() *Radix[K, V] {
	return &Radix[K, V]{
		v4: newTree[K, V](FamilyIPv4.MaxBits()),
		v6: newTree[K, V](FamilyIPv6.MaxBits()),
	}
}

func (r *Radix[K, V]) treeFor(f Family) *tree[K, V] {
	if f == FamilyIPv4 {
		return r.v4
	}
	return r.v6
}

// Add inserts a prefix in CIDR notation and returns its node. Adding the
// same canonical prefix twice returns the same node.
func (r *Radix[K, V]) Add(cidr string) (*Node[K, V], error) {
	p, err := ParsePrefix(cidr)
	if err != nil {
		return nil, err
	}
	return r.AddPrefix(p)
}

// AddNetwork inserts an address given with a separate mask length.
func (r *Radix[K, V]) AddNetwork(network string, masklen int) (*Node[K, V], error) {
	p, err := NewPrefix(network, masklen)
	if err != nil {
		return nil, err
	}
	return r.AddPrefix(p)
}

// AddPacked inserts a packed 4- or 16-byte address with a mask length.
func (r *Radix[K, V]) AddPacked(packed []byte, masklen int) (*Node[K, V], error) {
	p, err := PrefixFromBytes(packed, masklen)
	if err != nil {
		return nil, err
	}
	return r.AddPrefix(p)
}

// AddPrefix inserts an already constructed Prefix.
func (r *Radix[K, V]) AddPrefix(p Prefix) (*Node[K, V], error) {
	if !p.IsValid() {
		return nil, ErrInvalidPrefix
	}
	node := r.treeFor(p.family).insert(p)
	if node.Data == nil {
		node.Data = make(map[K]V)
	}
	r.gen++
	log.Tracef("added prefix %s", p)
	return node, nil
}

// Delete removes the exact prefix from the table. It returns ErrNotFound
// when no exact match is stored.
func (r *Radix[K, V]) Delete(cidr string) error {
	p, err := ParsePrefix(cidr)
	if err != nil {
		return err
	}
	return r.DeletePrefix(p)
}

// DeletePrefix removes an already constructed Prefix.
func (r *Radix[K, V]) DeletePrefix(p Prefix) error {
	if !p.IsValid() {
		return ErrInvalidPrefix
	}
	t := r.treeFor(p.family)
	node := t.searchExact(p)
	if node == nil {
		return ErrNotFound
	}
	t.remove(node)
	r.gen++
	return nil
}

// SearchExact returns the node stored for exactly this prefix, or nil.
func (r *Radix[K, V]) SearchExact(cidr string) (*Node[K, V], error) {
	p, err := ParsePrefix(cidr)
	if err != nil {
		return nil, err
	}
	return r.treeFor(p.family).searchExact(p), nil
}

// SearchBest returns the most specific stored prefix containing the query,
// or nil when nothing covers it.
func (r *Radix[K, V]) SearchBest(cidr string) (*Node[K, V], error) {
	p, err := ParsePrefix(cidr)
	if err != nil {
		return nil, err
	}
	return r.treeFor(p.family).searchBest(p), nil
}

// SearchWorst returns the least specific stored prefix containing the query.
func (r *Radix[K, V]) SearchWorst(cidr string) (*Node[K, V], error) {
	p, err := ParsePrefix(cidr)
	if err != nil {
		return nil, err
	}
	return r.treeFor(p.family).searchWorst(p), nil
}

// SearchCovered returns every stored prefix contained in the query's range,
// including the query itself when present. The order is deterministic but
// unspecified.
func (r *Radix[K, V]) SearchCovered(cidr string) ([]*Node[K, V], error) {
	p, err := ParsePrefix(cidr)
	if err != nil {
		return nil, err
	}
	return r.treeFor(p.family).searchCovered(p), nil
}

// SearchCovering returns every stored prefix containing the query, ordered
// most specific to least specific.
func (r *Radix[K, V]) SearchCovering(cidr string) ([]*Node[K, V], error) {
	p, err := ParsePrefix(cidr)
	if err != nil {
		return nil, err
	}
	return r.treeFor(p.family).searchCovering(p), nil
}

// Each walks every stored prefix, IPv4 tree first, depth first. It returns
// ErrConcurrentModification if the table is mutated while the walk is in
// progress; the caller may simply restart.
func (r *Radix[K, V]) Each(fn func(*Node[K, V]) bool) error {
	gen := r.gen
	var err error
	stopped := false
	visit := func(n *Node[K, V]) bool {
		if r.gen != gen {
			err = ErrConcurrentModification
			return false
		}
		if !fn(n) {
			stopped = true
			return false
		}
		return true
	}
	if r.v4.each(visit) && err == nil && !stopped {
		r.v6.each(visit)
	}
	return err
}

// Nodes returns all stored nodes.
func (r *Radix[K, V]) Nodes() ([]*Node[K, V], error) {
	var out []*Node[K, V]
	err := r.Each(func(n *Node[K, V]) bool {
		out = append(out, n)
		return true
	})
	return out, err
}

// Prefixes returns all stored prefixes in CIDR notation.
func (r *Radix[K, V]) Prefixes() ([]string, error) {
	var out []string
	err := r.Each(func(n *Node[K, V]) bool {
		out = append(out, n.String())
		return true
	})
	return out, err
}

// Len returns the number of stored prefixes across both families.
func (r *Radix[K, V]) Len() int {
	count := 0
	for _, t := range []*tree[K, V]{r.v4, r.v6} {
		t.each(func(*Node[K, V]) bool {
			count++
			return true
		})
	}
	return count
}
