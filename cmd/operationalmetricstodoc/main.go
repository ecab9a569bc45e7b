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

package main

import (
	"fmt"

	// imported for its metric registrations, which fill up `metricsOpts`
	_ "github.com/netobserv/aggradix/pkg/aggradix"
	operationalMetrics "github.com/netobserv/aggradix/pkg/operational/metrics"
)

func main() {
	header := `
> Note: this file was automatically generated, to update execute "make docs"

# aggradix Operational Metrics

Each table below provides documentation for an exported aggradix operational metric.

	`
	doc := operationalMetrics.GetDocumentation()
	data := fmt.Sprintf("%s\n%s\n", header, doc)
	fmt.Printf("%s", data)
}
