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

package cli

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/keepctl/keep/container"
	"github.com/keepctl/keep/entry"
)

// Main is keep's entrypoint. Before touching flag parsing or subcommand
// dispatch, it checks for the hidden re-exec form the supervisor uses to
// bring up a sandboxed child: argv[1] == container.EnterSubcommand. That
// path never returns.
func Main() {
	if len(os.Args) > 1 && os.Args[1] == container.EnterSubcommand {
		entry.RunFromInheritedFDs()
		return
	}

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(new(Run), "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
