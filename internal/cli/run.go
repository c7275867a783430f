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
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/google/subcommands"

	"github.com/keepctl/keep/container"
	"github.com/keepctl/keep/internal/log"
	"github.com/keepctl/keep/internal/registry"
)

// Run implements subcommands.Command for the "run" command: build a
// sandbox from a config file (or the default config), start it, wait for
// it to exit, and surface its exit code as keep's own.
type Run struct {
	configPath string
	debug      bool
}

// Name implements subcommands.Command.
func (*Run) Name() string { return "run" }

// Synopsis implements subcommands.Command.
func (*Run) Synopsis() string { return "run a target executable inside a fresh sandbox" }

// Usage implements subcommands.Command.
func (*Run) Usage() string {
	return "run [-config path.toml] [-debug] - run a sandboxed target\n"
}

// SetFlags implements subcommands.Command.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "", "path to a TOML config file; defaults to the built-in default config")
	f.BoolVar(&r.debug, "debug", false, "enable debug logging")
}

// Execute implements subcommands.Command.
func (r *Run) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	log.SetDebug(r.debug)

	cfg, err := LoadConfig(r.configPath)
	if err != nil {
		log.Errorf("load config: %v", err)
		return subcommands.ExitFailure
	}

	lockPath := fmt.Sprintf("%s.lock", cfg.WorkingPath)
	if err := os.MkdirAll(cfg.WorkingPath, 0o755); err != nil {
		log.Errorf("create working path: %v", err)
		return subcommands.ExitFailure
	}
	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, 0)
	if err != nil || !locked {
		log.Errorf("lock workspace %s: %v", cfg.WorkingPath, err)
		return subcommands.ExitFailure
	}
	defer fl.Unlock()

	c := container.New(cfg)
	reg := registry.New(8, 4, 4)
	if err := reg.Start(ctx, cfg.UID, c); err != nil {
		log.Errorf("start: %v", err)
		return subcommands.ExitFailure
	}
	defer func() {
		reg.Remove(cfg.UID)
		if err := c.Delete(); err != nil {
			log.Warningf("delete: %v", err)
		}
	}()

	state, err := c.Wait()
	if err != nil {
		log.Errorf("wait: %v", err)
		return subcommands.ExitFailure
	}
	if state != nil {
		os.Exit(state.ExitCode())
	}
	return subcommands.ExitSuccess
}
