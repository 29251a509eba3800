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

import "github.com/rs/zerolog"

// Option configures [Discover], [Compile], and [NewCompiler].
type Option func(*options)

type options struct {
	source RecordSource
	log    zerolog.Logger
}

func newOptions(opts []Option) *options {
	o := &options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.source == nil {
		o.source = PlatformSource()
	}
	return o
}

// WithSource sets the record source to discover the topology from, instead
// of [PlatformSource].
func WithSource(src RecordSource) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithLogger sets the logger for debug output; it defaults to a no-op
// logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}
