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

package protocol

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSuccessRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSuccess(&buf); err != nil {
		t.Fatalf("WriteSuccess: %v", err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.Success() {
		t.Fatalf("Read = %+v, want Success()", got)
	}
}

func TestFailureRoundTrip(t *testing.T) {
	cases := []struct {
		phase   Phase
		payload string
	}{
		{PhasePivot, "pivot_root: operation not permitted"},
		{PhaseSecurity, ""},
		{PhaseExec, "exec /bin/sh: no such file or directory"},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		if err := WriteFailure(&buf, c.phase, c.payload); err != nil {
			t.Fatalf("WriteFailure(%v, %q): %v", c.phase, c.payload, err)
		}
		got, err := Read(&buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		want := Report{Phase: c.phase, Payload: c.payload}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("Read() mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestWriteFailureZeroPhasePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("WriteFailure(phase=0): want panic, got none")
		}
	}()
	WriteFailure(&bytes.Buffer{}, 0, "bogus")
}
