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

package config

import (
	"time"

	"github.com/netobserv/aggradix/pkg/api"
)

// Opt holds the process options; cmd binds its flags onto it.
var Opt = Options{}

type Options struct {
	LogLevel string
	Input    Input
	Report   Report
	Health   Health
	Metrics  MetricsSettings
	Aggradix api.Aggradix
}

// Input selects where flow records come from: a JSON-lines file, or stdin
// when Filename is "-". Seeds optionally names a YAML file of prefixes to
// pre-populate the table with.
type Input struct {
	Filename string
	Seeds    string
}

// Report controls the periodic aggregate report.
type Report struct {
	Interval time.Duration
	Top      int
}

type Health struct {
	Port string
}

type MetricsSettings struct {
	Address string
	Port    int
}
