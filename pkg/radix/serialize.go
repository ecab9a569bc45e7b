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
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Record is the persisted form of one stored prefix. A dump is an ordered
// sequence of records; reload order does not affect correctness.
//
// JSON encoding requires K to be a string kind.
type Record[K comparable, V any] struct {
	Prefix string  `json:"prefix"`
	Data   map[K]V `json:"data,omitempty"`
}

// Dump returns every stored prefix with its payload, in iteration order.
func (r *Radix[K, V]) Dump() ([]Record[K, V], error) {
	var records []Record[K, V]
	err := r.Each(func(n *Node[K, V]) bool {
		records = append(records, Record[K, V]{Prefix: n.String(), Data: n.Data})
		return true
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Load inserts every record, replacing the payload of prefixes that already
// exist.
func (r *Radix[K, V]) Load(records []Record[K, V]) error {
	for _, rec := range records {
		node, err := r.Add(rec.Prefix)
		if err != nil {
			return errors.Wrapf(err, "loading %q", rec.Prefix)
		}
		if rec.Data != nil {
			node.Data = rec.Data
		}
	}
	return nil
}

// WriteJSON streams the dump to w as a JSON array.
func (r *Radix[K, V]) WriteJSON(w io.Writer) error {
	records, err := r.Dump()
	if err != nil {
		return err
	}
	if records == nil {
		records = []Record[K, V]{}
	}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(records); err != nil {
		return errors.Wrap(err, "encoding radix dump")
	}
	return nil
}

// ReadJSON builds a table from a JSON dump produced by WriteJSON.
func ReadJSON[K comparable, V any](rd io.Reader) (*Radix[K, V], error) {
	var records []Record[K, V]
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(rd).Decode(&records); err != nil {
		return nil, errors.Wrap(err, "decoding radix dump")
	}
	r := New[K, V]()
	if err := r.Load(records); err != nil {
		return nil, err
	}
	return r, nil
}
