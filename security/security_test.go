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

package security

import (
	"errors"
	"testing"
)

type fakePolicy struct {
	name string
	fail bool
	ran  *[]string
}

func (f *fakePolicy) String() string { return f.name }

func (f *fakePolicy) Apply() error {
	*f.ran = append(*f.ran, f.name)
	if f.fail {
		return errors.New("denied")
	}
	return nil
}

func TestRunOrder(t *testing.T) {
	var ran []string
	policies := []Policy{
		&fakePolicy{name: "capability", ran: &ran},
		&fakePolicy{name: "seccomp", ran: &ran},
	}
	if err := Run(policies); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ran) != 2 || ran[0] != "capability" || ran[1] != "seccomp" {
		t.Fatalf("ran = %v, want [capability seccomp]", ran)
	}
}

func TestRunStopsOnFailure(t *testing.T) {
	var ran []string
	policies := []Policy{
		&fakePolicy{name: "capability", ran: &ran, fail: true},
		&fakePolicy{name: "seccomp", ran: &ran},
	}
	if err := Run(policies); err == nil {
		t.Fatal("Run: want error, got nil")
	}
	if len(ran) != 1 {
		t.Fatalf("ran = %v, want only capability to have run", ran)
	}
}

func TestSpecRoundTrip(t *testing.T) {
	orig := []Policy{
		NewCapabilityPolicy("CAP_NET_BIND_SERVICE"),
		NewSeccompPolicy("read", "write"),
	}
	for _, p := range orig {
		spec, err := Spec(p)
		if err != nil {
			t.Fatalf("Spec(%s): %v", p, err)
		}
		got, err := FromSpec(spec)
		if err != nil {
			t.Fatalf("FromSpec(%v): %v", spec, err)
		}
		if got.String() != p.String() {
			t.Fatalf("round trip %s -> %v -> %s, want unchanged", p, spec, got)
		}
	}
}
