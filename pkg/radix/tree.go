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

// tree is a compressed binary trie over one address family. Nodes live in an
// arena owned by the tree; every link between nodes is an arena ref.
type tree[K comparable, V any] struct {
	maxbits int
	rootRef nodeRef
	nodes   []*Node[K, V]
	freed   []nodeRef
	actives int
}

func newTree[K comparable, V any](maxbits int) *tree[K, V] {
	return &tree[K, V]{maxbits: maxbits, rootRef: nilRef}
}

func (t *tree[K, V]) at(r nodeRef) *Node[K, V] {
	if r < 0 || int(r) >= len(t.nodes) {
		return nil
	}
	return t.nodes[r]
}

func (t *tree[K, V]) takeSlot() *Node[K, V] {
	t.actives++
	if k := len(t.freed); k > 0 {
		r := t.freed[k-1]
		t.freed = t.freed[:k-1]
		n := t.nodes[r]
		*n = Node[K, V]{id: r, parent: nilRef, left: nilRef, right: nilRef}
		return n
	}
	n := &Node[K, V]{id: nodeRef(len(t.nodes)), parent: nilRef, left: nilRef, right: nilRef}
	t.nodes = append(t.nodes, n)
	return n
}

func (t *tree[K, V]) alloc(p Prefix) nodeRef {
	n := t.takeSlot()
	n.prefix = p
	n.real = true
	n.bitlen = p.bitlen
	return n.id
}

func (t *tree[K, V]) allocGlue(bitlen int) nodeRef {
	n := t.takeSlot()
	n.bitlen = bitlen
	return n.id
}

func (t *tree[K, V]) release(r nodeRef) {
	n := t.at(r)
	if n == nil {
		return
	}
	*n = Node[K, V]{id: r, parent: nilRef, left: nilRef, right: nilRef}
	t.freed = append(t.freed, r)
	t.actives--
}

func (t *tree[K, V]) replaceChild(parent, old, repl nodeRef) {
	if parent == nilRef {
		t.rootRef = repl
		return
	}
	pn := t.at(parent)
	if pn.right == old {
		pn.right = repl
	} else {
		pn.left = repl
	}
}

// insert adds p to the tree and returns its node. Inserting a prefix that is
// already present returns the existing node; landing exactly on a glue node
// promotes it in place, keeping its children.
func (t *tree[K, V]) insert(p Prefix) *Node[K, V] {
	if t.rootRef == nilRef {
		t.rootRef = t.alloc(p)
		return t.at(t.rootRef)
	}
	addr := p.addr
	bitlen := p.bitlen

	// descend to the closest node, passing through glue
	n := t.at(t.rootRef)
	for n.bitlen < bitlen || !n.real {
		var next nodeRef
		if n.bitlen < t.maxbits && bitSet(addr, n.bitlen) {
			next = n.right
		} else {
			next = n.left
		}
		if next == nilRef {
			break
		}
		n = t.at(next)
	}

	// first bit over which the query and the landed node disagree
	landAddr := n.prefix.addr
	differ := differBit(addr, landAddr, min(n.bitlen, bitlen))

	// walk back up to the true insertion point
	for pr := n.parent; pr != nilRef && t.at(pr).bitlen >= differ; {
		n = t.at(pr)
		pr = n.parent
	}

	if differ == bitlen && n.bitlen == bitlen {
		if !n.real {
			// promote glue in place; its children stay attached
			n.prefix = p
			n.real = true
		}
		return n
	}

	newRef := t.alloc(p)
	nn := t.at(newRef)

	switch {
	case n.bitlen == differ:
		// attach as a direct child of n
		nn.parent = n.id
		if n.bitlen < t.maxbits && bitSet(addr, n.bitlen) {
			n.right = newRef
		} else {
			n.left = newRef
		}

	case bitlen == differ:
		// the new node sits strictly above n
		if bitlen < t.maxbits && bitSet(landAddr, bitlen) {
			nn.right = n.id
		} else {
			nn.left = n.id
		}
		nn.parent = n.parent
		t.replaceChild(n.parent, n.id, newRef)
		n.parent = newRef

	default:
		// synthesize a glue branch point at the differing bit
		gr := t.allocGlue(differ)
		g := t.at(gr)
		g.parent = n.parent
		if differ < t.maxbits && bitSet(addr, differ) {
			g.right, g.left = newRef, n.id
		} else {
			g.right, g.left = n.id, newRef
		}
		nn.parent = gr
		t.replaceChild(n.parent, n.id, gr)
		n.parent = gr
	}
	return nn
}

// remove detaches n from the tree. A node with two children stays behind as
// a data-less branch point; removing the last child of a glue node splices
// its remaining sibling up to the grandparent.
func (t *tree[K, V]) remove(n *Node[K, V]) {
	if n.left != nilRef && n.right != nilRef {
		n.prefix = Prefix{}
		n.real = false
		n.Data = nil
		return
	}

	id, parentRef := n.id, n.parent

	if n.left == nilRef && n.right == nilRef {
		t.release(id)
		if parentRef == nilRef {
			t.rootRef = nilRef
			return
		}
		parent := t.at(parentRef)
		var child nodeRef
		if parent.right == id {
			parent.right = nilRef
			child = parent.left
		} else {
			parent.left = nilRef
			child = parent.right
		}
		if parent.real {
			return
		}
		// the parent is glue left with a single child: splice the child up
		gp := parent.parent
		t.at(child).parent = gp
		t.replaceChild(gp, parentRef, child)
		t.release(parentRef)
		return
	}

	child := n.left
	if n.right != nilRef {
		child = n.right
	}
	t.at(child).parent = parentRef
	t.replaceChild(parentRef, id, child)
	t.release(id)
}

// searchExact descends exactly to the query's bit length, never deeper.
func (t *tree[K, V]) searchExact(p Prefix) *Node[K, V] {
	if t.rootRef == nilRef {
		return nil
	}
	n := t.at(t.rootRef)
	for n.bitlen < p.bitlen {
		var next nodeRef
		if n.bitlen < t.maxbits && bitSet(p.addr, n.bitlen) {
			next = n.right
		} else {
			next = n.left
		}
		if next == nilRef {
			return nil
		}
		n = t.at(next)
	}
	if n.bitlen > p.bitlen || !n.real {
		return nil
	}
	if n.prefix.MatchLen(p, p.bitlen) {
		return n
	}
	return nil
}

// walkPath descends toward p, collecting every real node on the way,
// including the landed node.
func (t *tree[K, V]) walkPath(p Prefix) []*Node[K, V] {
	if t.rootRef == nilRef {
		return nil
	}
	var stack []*Node[K, V]
	n := t.at(t.rootRef)
	for n.bitlen < p.bitlen {
		if n.real {
			stack = append(stack, n)
		}
		var next nodeRef
		if n.bitlen < t.maxbits && bitSet(p.addr, n.bitlen) {
			next = n.right
		} else {
			next = n.left
		}
		if next == nilRef {
			return stack
		}
		n = t.at(next)
	}
	if n.real {
		stack = append(stack, n)
	}
	return stack
}

// searchBest returns the most specific stored prefix containing p.
// Bit lengths strictly increase along a path, so ties are impossible.
func (t *tree[K, V]) searchBest(p Prefix) *Node[K, V] {
	stack := t.walkPath(p)
	for i := len(stack) - 1; i >= 0; i-- {
		n := stack[i]
		if n.bitlen <= p.bitlen && n.prefix.MatchLen(p, n.bitlen) {
			return n
		}
	}
	return nil
}

// searchWorst returns the least specific stored prefix containing p.
func (t *tree[K, V]) searchWorst(p Prefix) *Node[K, V] {
	stack := t.walkPath(p)
	for _, n := range stack {
		if n.bitlen <= p.bitlen && n.prefix.MatchLen(p, n.bitlen) {
			return n
		}
	}
	return nil
}

// searchCovered returns every stored prefix contained in p's range.
func (t *tree[K, V]) searchCovered(p Prefix) []*Node[K, V] {
	var results []*Node[K, V]
	if t.rootRef == nilRef {
		return results
	}
	n := t.at(t.rootRef)
	for n.bitlen < p.bitlen {
		var next nodeRef
		if n.bitlen < t.maxbits && bitSet(p.addr, n.bitlen) {
			next = n.right
		} else {
			next = n.left
		}
		if next == nilRef {
			return results
		}
		n = t.at(next)
	}
	stack := []*Node[K, V]{n}
	for len(stack) > 0 {
		n = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.real && n.prefix.MatchLen(p, p.bitlen) {
			results = append(results, n)
		}
		if n.right != nilRef {
			stack = append(stack, t.at(n.right))
		}
		if n.left != nilRef {
			stack = append(stack, t.at(n.left))
		}
	}
	return results
}

// searchCovering returns every stored prefix containing p, most specific
// first. Ancestors of the best match are strictly less specific by the trie
// shape invariant, so the parent chain is exactly the covering set.
func (t *tree[K, V]) searchCovering(p Prefix) []*Node[K, V] {
	var results []*Node[K, V]
	n := t.searchBest(p)
	for n != nil {
		if n.real {
			results = append(results, n)
		}
		n = t.at(n.parent)
	}
	return results
}

// each walks the tree depth first, skipping glue nodes. It returns false if
// fn stopped the walk.
func (t *tree[K, V]) each(fn func(*Node[K, V]) bool) bool {
	var stack []nodeRef
	r := t.rootRef
	for r != nilRef {
		n := t.at(r)
		if n.real {
			if !fn(n) {
				return false
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
	return true
}
