// Copyright 2024 The Keep Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fs defines the pluggable mount-step abstraction that assembles a
// container's filesystem view across the root pivot.
package fs

import (
	"fmt"
)

// Step is a single pluggable action against the container's filesystem view.
// Both phases default to no-ops; a step overrides only the one(s) it needs.
//
// Loading runs in the child, before the root pivot, with base equal to the
// assembled new-root directory. Loaded runs in the child, after the pivot,
// when "/" already refers to the container's new root.
//
// Steps are stateless and keyed only by the order they're inserted into
// Config.FS: all Loading calls run (in order) before any Loaded call (in
// order).
type Step interface {
	fmt.Stringer

	Loading(base string) error
	Loaded() error
}

// Base gives every concrete Step the no-op defaults, so each one only
// implements the phase it cares about.
type Base struct{ Kind string }

// Loading is the default no-op Loading implementation.
func (Base) Loading(string) error { return nil }

// Loaded is the default no-op Loaded implementation.
func (Base) Loaded() error { return nil }

// String returns the step's kind, for logging and Spec().
func (b Base) String() string { return b.Kind }

// RunLoading invokes Loading on every step, in order, stopping at the first
// error. Must run before the root pivot.
func RunLoading(steps []Step, base string) error {
	for _, s := range steps {
		if err := s.Loading(base); err != nil {
			return fmt.Errorf("mount step %s: loading: %w", s, err)
		}
	}
	return nil
}

// RunLoaded invokes Loaded on every step, in order, stopping at the first
// error. Must run after the root pivot.
func RunLoaded(steps []Step) error {
	for _, s := range steps {
		if err := s.Loaded(); err != nil {
			return fmt.Errorf("mount step %s: loaded: %w", s, err)
		}
	}
	return nil
}

// Run executes RunLoading then RunLoaded with no pivot in between. It exists
// for callers (tests, and anything that doesn't actually change roots) that
// don't need the two phases separated by a pivot_root.
func Run(steps []Step, base string) error {
	if err := RunLoading(steps, base); err != nil {
		return err
	}
	return RunLoaded(steps)
}
