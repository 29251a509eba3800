// Copyright 2024 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy
// of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package cputopo

import (
	"errors"
	"fmt"
)

// Discover queries the processor topology of this host (or of the source
// passed using [WithSource]) and compiles it. If the query fails, the error
// wraps [ErrTopologyUnavailable] and callers should fall back to
// [CoreCount] or [FlatProcessorCount]. An error wrapping
// [ErrMalformedRecordStream] instead signals a broken record source.
func Discover(opts ...Option) (*Topology, error) {
	o := newOptions(opts)
	records, err := o.source.Records(AllRelationships)
	if err != nil {
		o.log.Debug().Err(err).Msg("topology query failed")
		if !errors.Is(err, ErrTopologyUnavailable) && !errors.Is(err, ErrMalformedRecordStream) {
			err = fmt.Errorf("%w: %w", ErrTopologyUnavailable, err)
		}
		return nil, err
	}
	o.log.Debug().Int("records", len(records)).Msg("topology records fetched")
	return Compile(records, WithLogger(o.log))
}
