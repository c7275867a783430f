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

package fs

import (
	"errors"
	"testing"
)

type fakeStep struct {
	Base
	trace     *[]string
	name      string
	failLoad  bool
	failLoadd bool
}

func (f *fakeStep) Loading(base string) error {
	*f.trace = append(*f.trace, f.name+":loading")
	if f.failLoad {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeStep) Loaded() error {
	*f.trace = append(*f.trace, f.name+":loaded")
	if f.failLoadd {
		return errors.New("boom")
	}
	return nil
}

func TestRunOrdersLoadingBeforeLoaded(t *testing.T) {
	var trace []string
	steps := []Step{
		&fakeStep{Base: Base{Kind: "a"}, trace: &trace, name: "a"},
		&fakeStep{Base: Base{Kind: "b"}, trace: &trace, name: "b"},
	}
	if err := Run(steps, "/new-root"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"a:loading", "b:loading", "a:loaded", "b:loaded"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace[%d] = %q, want %q (full trace %v)", i, trace[i], want[i], trace)
		}
	}
}

func TestRunStopsOnLoadingFailure(t *testing.T) {
	var trace []string
	steps := []Step{
		&fakeStep{Base: Base{Kind: "a"}, trace: &trace, name: "a", failLoad: true},
		&fakeStep{Base: Base{Kind: "b"}, trace: &trace, name: "b"},
	}
	if err := Run(steps, "/new-root"); err == nil {
		t.Fatal("Run: want error, got nil")
	}
	if len(trace) != 1 || trace[0] != "a:loading" {
		t.Fatalf("trace = %v, want [a:loading] only (b must not run)", trace)
	}
}

func TestSpecRoundTrip(t *testing.T) {
	orig := []Step{
		NewTmpFS(),
		NewProcFS(),
		NewReadOnlyBindFS("/images/alpine"),
	}
	for _, s := range orig {
		spec, err := Spec(s)
		if err != nil {
			t.Fatalf("Spec(%s): %v", s, err)
		}
		got, err := FromSpec(spec)
		if err != nil {
			t.Fatalf("FromSpec(%v): %v", spec, err)
		}
		if got.String() != s.String() {
			t.Fatalf("round trip %s -> %v -> %s, want unchanged", s, spec, got)
		}
	}
}
