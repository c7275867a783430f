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

package entry

import (
	"os"

	"github.com/keepctl/keep/internal/protocol"
)

// RunFromInheritedFDs is the body of the hidden "enter" subcommand: it
// opens the three descriptors the supervisor donated via exec.Cmd.ExtraFiles
// at their fixed numbers and hands them to Run. Called from cli.Main when
// argv[1] is container.EnterSubcommand, before any subcommand dispatch;
// never directly by a user.
func RunFromInheritedFDs() {
	ready := os.NewFile(protocol.ReadyFD, "ready")
	wire := os.NewFile(protocol.ConfigFD, "wire")
	report := os.NewFile(protocol.ReportFD, "report")
	Run(ready, wire, report)
}
