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

package api

import "fmt"

// Aggradix configures the bounded, self-aggregating prefix table.
type Aggradix struct {
	Root           string  `yaml:"root,omitempty" json:"root,omitempty" doc:"prefix bounding the monitored address space (default ::/0)"`
	MaxNodes       int     `yaml:"maxNodes,omitempty" json:"maxNodes,omitempty" doc:"node pool capacity; two slots are always kept free for insertion"`
	HotMinimum     uint64  `yaml:"hotMinimum,omitempty" json:"hotMinimum,omitempty" doc:"floor of the hot-subtree threshold (default 10)"`
	HotFraction    float64 `yaml:"hotFraction,omitempty" json:"hotFraction,omitempty" doc:"fraction of total observed packets above which a subtree is hot (default 0.3)"`
	ReclaimRetries int     `yaml:"reclaimRetries,omitempty" json:"reclaimRetries,omitempty" doc:"how many hot victims a reclaim pass may skip before giving up (default 10)"`
}

const (
	defaultAggradixRoot        = "::/0"
	defaultAggradixHotMinimum  = 10
	defaultAggradixHotFraction = 0.3
	defaultAggradixRetries     = 10

	// minAggradixNodes is the smallest workable pool: root aside, one
	// insertion may need a leaf and a glue node.
	minAggradixNodes = 4
)

func (a *Aggradix) SetDefaults() {
	if a.Root == "" {
		a.Root = defaultAggradixRoot
	}
	if a.HotMinimum == 0 {
		a.HotMinimum = defaultAggradixHotMinimum
	}
	if a.HotFraction == 0 {
		a.HotFraction = defaultAggradixHotFraction
	}
	if a.ReclaimRetries == 0 {
		a.ReclaimRetries = defaultAggradixRetries
	}
}

func (a *Aggradix) Validate() error {
	if a.MaxNodes < minAggradixNodes {
		return fmt.Errorf("maxNodes must be at least %d, got %d", minAggradixNodes, a.MaxNodes)
	}
	if a.HotFraction < 0 || a.HotFraction > 1 {
		return fmt.Errorf("hotFraction must be within [0, 1], got %v", a.HotFraction)
	}
	if a.ReclaimRetries < 0 {
		return fmt.Errorf("reclaimRetries must not be negative, got %d", a.ReclaimRetries)
	}
	return nil
}
