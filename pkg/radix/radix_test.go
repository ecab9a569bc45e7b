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
	"fmt"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
)

func Test_Radix_FamilyDispatch(t *testing.T) {
	r := New[string, int]()
	_, err := r.Add("10.0.0.0/8")
	require.NoError(t, err)
	_, err = r.Add("2001:db8::/32")
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())

	// an IPv4 query never matches the IPv6 tree and vice versa
	n, err := r.SearchBest("10.1.2.3")
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, "10.0.0.0/8", n.String())

	n, err = r.SearchBest("2001:db8::1")
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, "2001:db8::/32", n.String())

	n, err = r.SearchExact("10.0.0.0/8")
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, FamilyIPv4, n.Prefix().Family())
}

func Test_Radix_AddVariants(t *testing.T) {
	r := New[string, int]()
	a, err := r.Add("10.0.0.0/8")
	require.NoError(t, err)
	b, err := r.AddNetwork("10.0.0.0", 8)
	require.NoError(t, err)
	c, err := r.AddPacked([]byte{10, 0, 0, 0}, 8)
	require.NoError(t, err)
	require.Same(t, a, b)
	require.Same(t, a, c)
	require.Equal(t, 1, r.Len())

	_, err = r.Add("bogus")
	require.ErrorIs(t, err, ErrInvalidPrefix)
	_, err = r.AddPrefix(Prefix{})
	require.ErrorIs(t, err, ErrInvalidPrefix)
}

func Test_Radix_DataSurvivesLookup(t *testing.T) {
	r := New[string, int]()
	n, err := r.Add("10.0.0.0/8")
	require.NoError(t, err)
	n.Data["hits"] = 7

	found, err := r.SearchExact("10.0.0.0/8")
	require.NoError(t, err)
	require.Same(t, n, found)
	require.Equal(t, 7, found.Data["hits"])

	// re-adding does not reset the payload
	again, err := r.Add("10.0.0.0/8")
	require.NoError(t, err)
	require.Equal(t, 7, again.Data["hits"])
}

func Test_Radix_Delete(t *testing.T) {
	r := New[string, int]()
	_, err := r.Add("10.0.0.0/8")
	require.NoError(t, err)
	_, err = r.Add("10.1.0.0/16")
	require.NoError(t, err)

	require.NoError(t, r.Delete("10.1.0.0/16"))
	require.Equal(t, 1, r.Len())
	require.ErrorIs(t, r.Delete("10.1.0.0/16"), ErrNotFound)
	require.ErrorIs(t, r.Delete("172.16.0.0/12"), ErrNotFound)
	require.ErrorIs(t, r.Delete("junk"), ErrInvalidPrefix)

	// a zero Prefix never reaches the trees
	require.ErrorIs(t, r.DeletePrefix(Prefix{}), ErrInvalidPrefix)
}

func Test_Radix_SearchCovered(t *testing.T) {
	r := New[string, int]()
	for _, cidr := range []string{"10.0.0.0/8", "10.0.0.0/16", "10.1.0.0/16", "192.168.0.0/16"} {
		_, err := r.Add(cidr)
		require.NoError(t, err)
	}

	nodes, err := r.SearchCovered("10.0.0.0/8")
	require.NoError(t, err)
	got := make([]string, 0, len(nodes))
	for _, n := range nodes {
		got = append(got, n.String())
	}
	require.ElementsMatch(t, []string{"10.0.0.0/8", "10.0.0.0/16", "10.1.0.0/16"}, got)

	nodes, err = r.SearchCovered("10.1.0.0/16")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "10.1.0.0/16", nodes[0].String())

	nodes, err = r.SearchCovered("172.16.0.0/12")
	require.NoError(t, err)
	require.Empty(t, nodes)
}

func Test_Radix_SearchCovering(t *testing.T) {
	r := New[string, int]()
	for _, cidr := range []string{"0.0.0.0/0", "10.0.0.0/8", "10.1.0.0/16"} {
		_, err := r.Add(cidr)
		require.NoError(t, err)
	}

	nodes, err := r.SearchCovering("10.1.2.0/24")
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	// most specific first
	require.Equal(t, "10.1.0.0/16", nodes[0].String())
	require.Equal(t, "10.0.0.0/8", nodes[1].String())
	require.Equal(t, "0.0.0.0/0", nodes[2].String())

	nodes, err = r.SearchCovering("192.168.0.0/16")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, "0.0.0.0/0", nodes[0].String())
}

func Test_Radix_GluePromotionAfterSiblings(t *testing.T) {
	r := New[string, int]()
	_, err := r.Add("192.168.1.0/24")
	require.NoError(t, err)
	_, err = r.Add("192.168.2.0/24")
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())

	// the supernet lands exactly on the glue branch point
	_, err = r.Add("192.168.0.0/22")
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())

	n, err := r.SearchExact("192.168.0.0/22")
	require.NoError(t, err)
	require.NotNil(t, n)

	covered, err := r.SearchCovered("192.168.0.0/22")
	require.NoError(t, err)
	require.Len(t, covered, 3)
}

func Test_Radix_EachDetectsMutation(t *testing.T) {
	r := New[string, int]()
	for _, cidr := range []string{"10.0.0.0/8", "10.1.0.0/16", "10.2.0.0/16"} {
		_, err := r.Add(cidr)
		require.NoError(t, err)
	}

	err := r.Each(func(*Node[string, int]) bool {
		_, addErr := r.Add("172.16.0.0/12")
		require.NoError(t, addErr)
		return true
	})
	require.ErrorIs(t, err, ErrConcurrentModification)

	// a clean restart succeeds
	count := 0
	err = r.Each(func(*Node[string, int]) bool {
		count++
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

func Test_Radix_EachEarlyStop(t *testing.T) {
	r := New[string, int]()
	for _, cidr := range []string{"10.0.0.0/8", "10.1.0.0/16", "10.2.0.0/16"} {
		_, err := r.Add(cidr)
		require.NoError(t, err)
	}
	count := 0
	err := r.Each(func(*Node[string, int]) bool {
		count++
		return count < 2
	})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func Test_Radix_RandomChurn(t *testing.T) {
	faker := gofakeit.New(42)
	r := New[string, int]()
	stored := make(map[string]bool)

	for i := 0; i < 500; i++ {
		cidr := fmt.Sprintf("%s/%d", faker.IPv4Address(), faker.Number(1, 32))
		n, err := r.Add(cidr)
		require.NoError(t, err)
		stored[n.String()] = true
	}
	require.Equal(t, len(stored), r.Len())

	for canonical := range stored {
		n, err := r.SearchExact(canonical)
		require.NoError(t, err)
		require.NotNil(t, n, "missing %s", canonical)
	}

	for canonical := range stored {
		require.NoError(t, r.Delete(canonical), "deleting %s", canonical)
	}
	require.Equal(t, 0, r.Len())
}

func Test_Radix_RandomBestMatchAgainstContains(t *testing.T) {
	faker := gofakeit.New(1234)
	r := New[string, int]()
	var prefixes []Prefix

	for i := 0; i < 200; i++ {
		cidr := fmt.Sprintf("%s/%d", faker.IPv4Address(), faker.Number(1, 28))
		n, err := r.Add(cidr)
		require.NoError(t, err)
		prefixes = append(prefixes, n.Prefix())
	}

	for i := 0; i < 200; i++ {
		q, err := ParsePrefix(faker.IPv4Address())
		require.NoError(t, err)

		// brute-force longest match over the stored set
		wantLen := -1
		for _, p := range prefixes {
			if p.Contains(q) && p.Bitlen() > wantLen {
				wantLen = p.Bitlen()
			}
		}

		n, err := r.SearchBest(q.String())
		require.NoError(t, err)
		if wantLen < 0 {
			require.Nil(t, n)
		} else {
			require.NotNil(t, n)
			require.Equal(t, wantLen, n.Bitlen())
		}
	}
}
