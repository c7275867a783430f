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

package idmap

import (
	"runtime"
	"strings"
	"testing"
)

func TestMapToRootRejectsMissingProcess(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires /proc")
	}
	// PID 1<<30 is never a real process; the mapping must fail with a
	// wrapped error naming the file it couldn't write, not panic.
	err := MapToRoot(1<<30, 0, 0)
	if err == nil {
		t.Fatal("MapToRoot: want error for nonexistent pid, got nil")
	}
	if !strings.Contains(err.Error(), "setgroups") {
		t.Fatalf("MapToRoot error = %q, want it to name the first file it tried (setgroups)", err.Error())
	}
}
