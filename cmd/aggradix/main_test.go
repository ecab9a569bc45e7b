/*
 * Copyright (C) 2021 IBM, Inc.
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

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/netobserv/aggradix/pkg/aggradix"
	"github.com/netobserv/aggradix/pkg/api"
	"github.com/stretchr/testify/require"
)

func Test_ingest(t *testing.T) {
	table, err := aggradix.New(api.Aggradix{Root: "0.0.0.0/0", MaxNodes: 32})
	require.NoError(t, err)

	opts.Report.Interval = time.Minute
	opts.Report.Top = 5

	input := strings.Join([]string{
		`{"SrcAddr":"1.1.1.1","DstAddr":"10.0.0.1","Bytes":120}`,
		`{"SrcAddr":"1.1.1.1","DstAddr":"10.0.0.1"}`,
		`{"SrcAddr":"2.2.2.2","DstAddr":"10.0.0.2"}`,
		`{"SrcAddr":"3.3.3.3"}`,
		`not json at all`,
	}, "\n")

	exitChan := make(chan struct{})
	ingest(table, strings.NewReader(input), exitChan, clock.NewMock())

	// the record without DstAddr is skipped, the broken line ends the input
	require.Equal(t, uint64(3), table.PacketCount())

	n, err := table.SearchExact("10.0.0.1", 32)
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Equal(t, uint64(2), n.Counts()["1.1.1.1"])
}

func Test_seedTable(t *testing.T) {
	table, err := aggradix.New(api.Aggradix{Root: "0.0.0.0/0", MaxNodes: 32})
	require.NoError(t, err)

	seeds := filepath.Join(t.TempDir(), "seeds.yaml")
	require.NoError(t, os.WriteFile(seeds, []byte("prefixes:\n  - 10.0.0.0/8\n  - 172.16.0.0/12\n"), 0600))

	require.NoError(t, seedTable(table, seeds))
	require.Equal(t, 2, table.AllocatedNodes())

	n, err := table.SearchExact("10.0.0.0", 8)
	require.NoError(t, err)
	require.NotNil(t, n)
}

func Test_seedTable_Errors(t *testing.T) {
	table, err := aggradix.New(api.Aggradix{Root: "0.0.0.0/0", MaxNodes: 32})
	require.NoError(t, err)

	require.Error(t, seedTable(table, filepath.Join(t.TempDir(), "missing.yaml")))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("prefixes:\n  - not-a-prefix\n"), 0600))
	require.Error(t, seedTable(table, bad))
}
