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

// Package security narrows a child process's privileges immediately before
// it execs the target binary.
package security

import "fmt"

// Policy is a single pluggable action applied in the child, after identity
// drop, immediately before exec.
type Policy interface {
	fmt.Stringer

	Apply() error
}

// Run applies every policy, in order, stopping at the first error.
func Run(policies []Policy) error {
	for _, p := range policies {
		if err := p.Apply(); err != nil {
			return fmt.Errorf("security policy %s: %w", p, err)
		}
	}
	return nil
}

// Kind tags a Policy's concrete type across the child re-exec boundary, the
// same way fs.Kind does for mount steps.
type Kind string

// The stock policy kinds.
const (
	KindCapability Kind = "capability"
	KindSeccomp    Kind = "seccomp"
)

// PolicySpec is the wire representation of a Policy.
type PolicySpec struct {
	Kind Kind `json:"kind"`

	// Keep, for KindCapability, is the set of capabilities (by name, e.g.
	// "CAP_CHOWN") left in the permitted/effective/inheritable/bounding
	// sets. Empty means clear all four, which is the default.
	Keep []string `json:"keep,omitempty"`

	// Allow, for KindSeccomp, is the set of syscalls (by name) permitted
	// through the default-deny filter.
	Allow []string `json:"allow,omitempty"`
}

// Spec returns the wire representation of a stock policy.
func Spec(p Policy) (PolicySpec, error) {
	switch v := p.(type) {
	case *CapabilityPolicy:
		return PolicySpec{Kind: KindCapability, Keep: v.Keep}, nil
	case *SeccompPolicy:
		return PolicySpec{Kind: KindSeccomp, Allow: v.Allow}, nil
	default:
		return PolicySpec{}, fmt.Errorf("security: policy %s has no wire representation", p)
	}
}

// FromSpec reconstructs a stock Policy from its wire representation.
func FromSpec(spec PolicySpec) (Policy, error) {
	switch spec.Kind {
	case KindCapability:
		return NewCapabilityPolicy(spec.Keep...), nil
	case KindSeccomp:
		return NewSeccompPolicy(spec.Allow...), nil
	default:
		return nil, fmt.Errorf("security: unknown policy kind %q", spec.Kind)
	}
}
