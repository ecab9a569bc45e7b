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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustPrefix(t *testing.T, cidr string) Prefix {
	t.Helper()
	p, err := ParsePrefix(cidr)
	require.NoError(t, err)
	return p
}

func Test_insert_Idempotent(t *testing.T) {
	tr := newTree[string, int](32)
	n1 := tr.insert(mustPrefix(t, "10.0.0.0/8"))
	n2 := tr.insert(mustPrefix(t, "10.0.0.0/8"))
	require.Same(t, n1, n2)
	require.Equal(t, 1, tr.actives)

	// same canonical prefix, different textual form
	n3 := tr.insert(mustPrefix(t, "10.99.0.0/8"))
	require.Same(t, n1, n3)
	require.Equal(t, 1, tr.actives)
}

func Test_insert_ChildAttach(t *testing.T) {
	tr := newTree[string, int](32)
	tr.insert(mustPrefix(t, "10.0.0.0/8"))
	nine := tr.insert(mustPrefix(t, "10.128.0.0/9"))
	ten := tr.insert(mustPrefix(t, "10.64.0.0/10"))

	// both attach without glue: the parent's bit length is the differ bit
	require.Equal(t, 3, tr.actives)
	require.Equal(t, "10.0.0.0/8", tr.at(nine.parent).String())
	require.Equal(t, "10.0.0.0/8", tr.at(ten.parent).String())

	deep := tr.insert(mustPrefix(t, "10.192.0.0/10"))
	require.Equal(t, 4, tr.actives)
	require.Same(t, nine, tr.at(deep.parent))
}

func Test_insert_GlueSynthesis(t *testing.T) {
	tr := newTree[string, int](32)
	one := tr.insert(mustPrefix(t, "192.168.1.0/24"))
	two := tr.insert(mustPrefix(t, "192.168.2.0/24"))

	// 192.168.1.0 and 192.168.2.0 first disagree at bit 22
	require.Equal(t, 3, tr.actives)
	glue := tr.at(one.parent)
	require.Same(t, glue, tr.at(two.parent))
	require.False(t, glue.real)
	require.Equal(t, 22, glue.bitlen)
	require.Equal(t, glue.left, one.id)
	require.Equal(t, glue.right, two.id)
}

func Test_insert_GluePromotion(t *testing.T) {
	tr := newTree[string, int](32)
	one := tr.insert(mustPrefix(t, "192.168.1.0/24"))
	two := tr.insert(mustPrefix(t, "192.168.2.0/24"))
	require.Equal(t, 3, tr.actives)

	// landing exactly on the glue node turns it real in place
	promoted := tr.insert(mustPrefix(t, "192.168.0.0/22"))
	require.Equal(t, 3, tr.actives)
	require.True(t, promoted.real)
	require.Equal(t, "192.168.0.0/22", promoted.String())
	require.Equal(t, promoted.left, one.id)
	require.Equal(t, promoted.right, two.id)

	require.Same(t, promoted, tr.searchExact(mustPrefix(t, "192.168.0.0/22")))
}

func Test_insert_Above(t *testing.T) {
	tr := newTree[string, int](32)
	sixteen := tr.insert(mustPrefix(t, "10.1.0.0/16"))
	eight := tr.insert(mustPrefix(t, "10.0.0.0/8"))

	require.Equal(t, 2, tr.actives)
	require.Equal(t, eight.id, tr.rootRef)
	require.Same(t, eight, tr.at(sixteen.parent))
	require.Same(t, sixteen, tr.searchBest(mustPrefix(t, "10.1.2.3/32")))
	require.Same(t, eight, tr.searchWorst(mustPrefix(t, "10.1.2.3/32")))
}

func Test_remove_Leaf(t *testing.T) {
	tr := newTree[string, int](32)
	tr.insert(mustPrefix(t, "10.0.0.0/8"))
	nine := tr.insert(mustPrefix(t, "10.128.0.0/9"))

	tr.remove(nine)
	require.Equal(t, 1, tr.actives)
	require.Nil(t, tr.searchExact(mustPrefix(t, "10.128.0.0/9")))
	require.NotNil(t, tr.searchExact(mustPrefix(t, "10.0.0.0/8")))
}

func Test_remove_SplicesGlueParent(t *testing.T) {
	tr := newTree[string, int](32)
	one := tr.insert(mustPrefix(t, "192.168.1.0/24"))
	two := tr.insert(mustPrefix(t, "192.168.2.0/24"))
	require.Equal(t, 3, tr.actives)

	// removing one leaf must not leave the glue parent behind
	tr.remove(one)
	require.Equal(t, 1, tr.actives)
	require.Equal(t, two.id, tr.rootRef)
	require.Equal(t, nilRef, two.parent)
	require.Nil(t, tr.searchExact(mustPrefix(t, "192.168.1.0/24")))
}

func Test_remove_TwoChildrenKeepsBranchPoint(t *testing.T) {
	tr := newTree[string, int](32)
	one := tr.insert(mustPrefix(t, "192.168.1.0/24"))
	two := tr.insert(mustPrefix(t, "192.168.2.0/24"))
	promoted := tr.insert(mustPrefix(t, "192.168.0.0/22"))

	tr.remove(promoted)
	require.Equal(t, 3, tr.actives)
	require.False(t, promoted.real)
	require.Nil(t, tr.searchExact(mustPrefix(t, "192.168.0.0/22")))
	require.Same(t, one, tr.searchExact(mustPrefix(t, "192.168.1.0/24")))
	require.Same(t, two, tr.searchExact(mustPrefix(t, "192.168.2.0/24")))
}

func Test_remove_OneChildSplicesUp(t *testing.T) {
	tr := newTree[string, int](32)
	eight := tr.insert(mustPrefix(t, "10.0.0.0/8"))
	nine := tr.insert(mustPrefix(t, "10.128.0.0/9"))
	ten := tr.insert(mustPrefix(t, "10.128.0.0/10"))

	tr.remove(nine)
	require.Equal(t, 2, tr.actives)
	require.Same(t, eight, tr.at(ten.parent))
	require.Same(t, ten, tr.searchBest(mustPrefix(t, "10.128.0.1/32")))
}

func Test_remove_LastNode(t *testing.T) {
	tr := newTree[string, int](32)
	n := tr.insert(mustPrefix(t, "10.0.0.0/8"))
	tr.remove(n)
	require.Equal(t, 0, tr.actives)
	require.Equal(t, nilRef, tr.rootRef)

	// the arena slot is recycled by the next insertion
	again := tr.insert(mustPrefix(t, "172.16.0.0/12"))
	require.Equal(t, 1, tr.actives)
	require.Equal(t, "172.16.0.0/12", again.String())
}

func Test_searchBest_PicksDeepest(t *testing.T) {
	tr := newTree[string, int](32)
	tr.insert(mustPrefix(t, "0.0.0.0/0"))
	tr.insert(mustPrefix(t, "10.0.0.0/8"))
	sixteen := tr.insert(mustPrefix(t, "10.1.0.0/16"))

	require.Same(t, sixteen, tr.searchBest(mustPrefix(t, "10.1.2.3/32")))
	require.Same(t, sixteen, tr.searchBest(mustPrefix(t, "10.1.0.0/16")))

	best := tr.searchBest(mustPrefix(t, "10.2.0.0/16"))
	require.NotNil(t, best)
	require.Equal(t, "10.0.0.0/8", best.String())

	best = tr.searchBest(mustPrefix(t, "172.16.0.1/32"))
	require.NotNil(t, best)
	require.Equal(t, "0.0.0.0/0", best.String())
}

func Test_searchBest_NoMatch(t *testing.T) {
	tr := newTree[string, int](32)
	tr.insert(mustPrefix(t, "10.0.0.0/8"))
	require.Nil(t, tr.searchBest(mustPrefix(t, "11.0.0.1/32")))
	// a query shorter than every stored prefix matches nothing
	require.Nil(t, tr.searchBest(mustPrefix(t, "10.0.0.0/7")))
}

func Test_searchWorst(t *testing.T) {
	tr := newTree[string, int](32)
	tr.insert(mustPrefix(t, "10.0.0.0/8"))
	tr.insert(mustPrefix(t, "10.1.0.0/16"))
	tr.insert(mustPrefix(t, "10.1.2.0/24"))

	worst := tr.searchWorst(mustPrefix(t, "10.1.2.3/32"))
	require.NotNil(t, worst)
	require.Equal(t, "10.0.0.0/8", worst.String())
}

func Test_searchExact_IgnoresGlue(t *testing.T) {
	tr := newTree[string, int](32)
	tr.insert(mustPrefix(t, "192.168.1.0/24"))
	tr.insert(mustPrefix(t, "192.168.2.0/24"))

	// the glue branch point at /22 is not a stored prefix
	require.Nil(t, tr.searchExact(mustPrefix(t, "192.168.0.0/22")))
}
