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

package security

import (
	"fmt"
	"strings"

	"github.com/syndtr/gocapability/capability"
)

// CapabilityPolicy restricts the calling process's permitted, effective,
// inheritable, and bounding capability sets to Keep. The zero value clears
// all four sets.
type CapabilityPolicy struct {
	Keep []string
}

// NewCapabilityPolicy returns a policy that keeps exactly the named
// capabilities (e.g. "CAP_NET_BIND_SERVICE") in every set, clearing
// everything else. With no arguments it clears all capabilities, matching
// the reference default.
func NewCapabilityPolicy(keep ...string) *CapabilityPolicy {
	return &CapabilityPolicy{Keep: keep}
}

// String implements fmt.Stringer.
func (c *CapabilityPolicy) String() string {
	if len(c.Keep) == 0 {
		return "capability(clear-all)"
	}
	return fmt.Sprintf("capability(keep=%v)", c.Keep)
}

// Apply clears every capability set except the configured Keep list. It must
// run before the seccomp policy is applied: the default seccomp allowlist
// does not include capset(2) or prctl(2), which dropping capabilities uses.
func (c *CapabilityPolicy) Apply() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("load capability state: %w", err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("load capability state: %w", err)
	}

	caps.Clear(capability.CAPS | capability.BOUNDS | capability.AMBS)
	for _, name := range c.Keep {
		cap, ok := capabilityByName[name]
		if !ok {
			return fmt.Errorf("unknown capability %q", name)
		}
		caps.Set(capability.PERMITTED|capability.EFFECTIVE|capability.INHERITABLE|capability.BOUNDING, cap)
	}
	if err := caps.Apply(capability.CAPS | capability.BOUNDS); err != nil {
		return fmt.Errorf("apply capability state: %w", err)
	}
	return nil
}

var capabilityByName = buildCapabilityByName()

func buildCapabilityByName() map[string]capability.Cap {
	m := make(map[string]capability.Cap, capability.CAP_LAST_CAP+1)
	for c := capability.Cap(0); c <= capability.CAP_LAST_CAP; c++ {
		m["CAP_"+strings.ToUpper(c.String())] = c
	}
	return m
}
