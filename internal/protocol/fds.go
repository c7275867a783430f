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

// The child's standard fds (0, 1, 2) are reassigned during the stdio phase,
// so the three descriptors the supervisor donates across the re-exec ride
// on fixed numbers above them. exec.Cmd.ExtraFiles appends them in order
// starting at fd 3, so each constant is the fd number the child inherits,
// and the constant minus 3 is its index into the ExtraFiles slice.
const (
	// ReadyFD is the read end of the gate pipe: the parent closes its write
	// end (or writes then closes) once it has finished id-mapping and
	// applying cgroup limits, and the child blocks reading it until EOF.
	ReadyFD = 3

	// ReportFD is the write end of the status pipe: the child writes one
	// report frame (see Read/WriteSuccess/WriteFailure) before either
	// execing the target or exiting on failure. If exec fails after the
	// success frame, the child writes a second, diagnostic PhaseExec frame
	// that the supervisor does not read.
	ReportFD = 4

	// ConfigFD is the read end of a pipe carrying the JSON-encoded
	// config.Wire the child needs to reconstruct its mount steps and
	// security policies. This is neither the ready pipe nor the report
	// pipe named in the two-pipe handoff: it is a third, independent
	// descriptor, so the "do not collapse the two into one" constraint on
	// ready/report is untouched.
	ConfigFD = 5

	// ExtraFiles is the number of descriptors the supervisor must donate,
	// in order, via exec.Cmd.ExtraFiles.
	ExtraFiles = 3
)
