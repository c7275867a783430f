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

//go:build linux

package config

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/keepctl/keep/fs"
	"github.com/keepctl/keep/security"
)

// Wire is the JSON-serializable projection of Config that crosses the
// re-exec boundary between the supervisor and the child entry point. Go's
// clone(2)-then-exec(2) child is a distinct process image, unlike the
// reference's clone(2)-without-exec child, which shared the parent's
// address space and so could hold a live Arc<Config> directly; Wire is how
// this implementation honors the same "child never observes the supervisor
// mutating Config" invariant across that harder process boundary (see
// spec.md §9's "Shared config across address spaces" design note).
type Wire struct {
	UID              uint64         `json:"uid"`
	WorkingPath      string         `json:"working_path"`
	Hostname         string         `json:"hostname"`
	TargetExecutable string         `json:"target_executable"`
	FS               []fs.StepSpec  `json:"fs"`
	SecurityPolicies []security.PolicySpec `json:"security_policies"`
	InnerUID         uint32         `json:"inner_uid"`
	InnerGID         uint32         `json:"inner_gid"`
	Stdin            string         `json:"stdin,omitempty"`
	Stdout           string         `json:"stdout,omitempty"`
	Stderr           string         `json:"stderr,omitempty"`
}

// ToWire projects c into its wire form. The cgroup policy and time limit
// aren't included: both are consumed entirely on the supervisor side (the
// parent applies cgroup limits before releasing the ready gate, and owns
// the deadline timer), so the child never needs them.
func (c Config) ToWire() (Wire, error) {
	w := Wire{
		UID:              c.UID,
		WorkingPath:      c.WorkingPath,
		Hostname:         c.Hostname,
		TargetExecutable: c.TargetExecutable,
		InnerUID:         c.InnerUID,
		InnerGID:         c.InnerGID,
		Stdin:            c.Stdin,
		Stdout:           c.Stdout,
		Stderr:           c.Stderr,
	}
	for _, step := range c.FS {
		spec, err := fs.Spec(step)
		if err != nil {
			return Wire{}, err
		}
		w.FS = append(w.FS, spec)
	}
	for _, policy := range c.SecurityPolicies {
		spec, err := security.Spec(policy)
		if err != nil {
			return Wire{}, err
		}
		w.SecurityPolicies = append(w.SecurityPolicies, spec)
	}
	return w, nil
}

// WriteTo JSON-encodes the wire config to w.
func (w Wire) WriteTo(out io.Writer) error {
	return json.NewEncoder(out).Encode(w)
}

// ReadWire decodes a Wire config previously written by WriteTo.
func ReadWire(in io.Reader) (Wire, error) {
	var w Wire
	if err := json.NewDecoder(in).Decode(&w); err != nil {
		return Wire{}, fmt.Errorf("decode wire config: %w", err)
	}
	return w, nil
}

// Hydrate reconstructs the live mount steps and security policies the child
// needs from their wire specs.
func (w Wire) Hydrate() ([]fs.Step, []security.Policy, error) {
	steps := make([]fs.Step, 0, len(w.FS))
	for _, spec := range w.FS {
		step, err := fs.FromSpec(spec)
		if err != nil {
			return nil, nil, err
		}
		steps = append(steps, step)
	}
	policies := make([]security.Policy, 0, len(w.SecurityPolicies))
	for _, spec := range w.SecurityPolicies {
		policy, err := security.FromSpec(spec)
		if err != nil {
			return nil, nil, err
		}
		policies = append(policies, policy)
	}
	return steps, policies, nil
}
