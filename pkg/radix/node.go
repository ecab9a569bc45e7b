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

package radix

// nodeRef is a node identity scoped to its owning arena. Parent and child
// links are refs, not pointers, so a stale link can never dangle: it either
// resolves against the arena or it is nilRef.
type nodeRef = int32

const nilRef nodeRef = -1

// Node is one arena entry. A node without a prefix is a glue node, a pure
// branch point synthesized during insertion; glue nodes carry no data and
// are spliced out as soon as they would retain a single child.
//
// Data is an open mapping owned by the node; callers may mutate it after
// lookup or insertion.
type Node[K comparable, V any] struct {
	id     nodeRef
	prefix Prefix
	real   bool
	bitlen int

	parent nodeRef
	left   nodeRef
	right  nodeRef

	Data map[K]V
}

// Prefix returns the node's prefix. The zero Prefix is returned for glue
// nodes, which are never handed out by searches.
func (n *Node[K, V]) Prefix() Prefix { return n.prefix }

// Bitlen returns the depth at which the node's children diverge. For a real
// node this equals its prefix length.
func (n *Node[K, V]) Bitlen() int { return n.bitlen }

// Network returns the textual network address of the node's prefix.
func (n *Node[K, V]) Network() string { return n.prefix.Network() }

func (n *Node[K, V]) String() string { return n.prefix.String() }
