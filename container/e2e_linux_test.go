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

package container

import (
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/keepctl/keep/config"
	"github.com/keepctl/keep/fs"
)

// requireRootAndLinux skips e2e scenarios that need real namespaces and
// cgroups: CLONE_NEWUSER's id mapping and cgroup attachment both require
// privilege, so these only run on a properly configured Linux host, the same
// way the teacher and the rest of the pack guard their own namespace/cgroup
// tests rather than failing unprivileged CI runs outright.
func requireRootAndLinux(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("requires linux")
	}
	if os.Geteuid() != 0 {
		t.Skip("requires root (namespace and cgroup setup)")
	}
}

// writeScript writes an executable POSIX sh script under dir and returns its
// path. Scripts avoid subshells and external commands beyond the initial sh
// itself, so they run under the default seccomp allowlist without needing a
// custom profile.
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// scenarioConfig returns a Config that pivots into a read-only recursive
// bind of the host root plus a fresh /proc, with target set to script.
func scenarioConfig(t *testing.T, script string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.WorkingPath = t.TempDir()
	cfg.TargetExecutable = script
	cfg.FS = []fs.Step{fs.NewReadOnlyBindFS("/"), fs.NewProcFS()}
	cfg.TimeLimit = 5 * time.Second
	return cfg
}

func waitExitCode(t *testing.T, c *Container) int {
	t.Helper()
	state, err := c.Wait()
	if err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	return state.ExitCode()
}

func TestE2ESleepPastDeadlineIsKilled(t *testing.T) {
	requireRootAndLinux(t)

	script := writeScript(t, t.TempDir(), "while :; do :; done")
	cfg := scenarioConfig(t, script)
	cfg.TimeLimit = 200 * time.Millisecond

	c := New(cfg)
	defer c.Close()
	if err := c.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}

	state, err := c.Wait()
	if err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() || ws.Signal() != syscall.SIGKILL {
		t.Fatalf("ProcessState = %v, want signaled by SIGKILL", state)
	}
}

func TestE2EHostnameIsolation(t *testing.T) {
	requireRootAndLinux(t)

	script := writeScript(t, t.TempDir(), `
read h < /proc/sys/kernel/hostname
if [ "$h" = "keep-e2e-host" ]; then exit 0; else exit 1; fi`)
	cfg := scenarioConfig(t, script)
	cfg.Hostname = "keep-e2e-host"

	c := New(cfg)
	defer c.Close()
	if err := c.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if code := waitExitCode(t, c); code != 0 {
		t.Fatalf("exit code = %d, want 0 (hostname not visible inside sandbox)", code)
	}
}

func TestE2EReadOnlyRoot(t *testing.T) {
	requireRootAndLinux(t)

	script := writeScript(t, t.TempDir(), `
if > /keep-e2e-write-test 2>/dev/null; then exit 1; else exit 0; fi`)
	cfg := scenarioConfig(t, script)

	c := New(cfg)
	defer c.Close()
	if err := c.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if code := waitExitCode(t, c); code != 0 {
		t.Fatalf("exit code = %d, want 0 (root should be read-only)", code)
	}
}

func TestE2EPIDNamespace(t *testing.T) {
	requireRootAndLinux(t)

	script := writeScript(t, t.TempDir(), `
if [ "$$" = "1" ]; then exit 0; else exit 1; fi`)
	cfg := scenarioConfig(t, script)

	c := New(cfg)
	defer c.Close()
	if err := c.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if code := waitExitCode(t, c); code != 0 {
		t.Fatalf("exit code = %d, want 0 (script should be pid 1 in its own namespace)", code)
	}
}

func TestE2ECapabilitiesDropped(t *testing.T) {
	requireRootAndLinux(t)

	script := writeScript(t, t.TempDir(), `
ok=1
while IFS= read -r line; do
  case "$line" in
    CapEff:*[123456789a-fA-F]*) ok=0 ;;
  esac
done < /proc/self/status
if [ "$ok" = "1" ]; then exit 0; else exit 1; fi`)
	cfg := scenarioConfig(t, script)

	c := New(cfg)
	defer c.Close()
	if err := c.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if code := waitExitCode(t, c); code != 0 {
		t.Fatalf("exit code = %d, want 0 (effective capability set should be empty)", code)
	}
}

func TestE2EDoubleStartRejected(t *testing.T) {
	requireRootAndLinux(t)

	script := writeScript(t, t.TempDir(), "exit 0")
	cfg := scenarioConfig(t, script)

	c := New(cfg)
	defer c.Close()
	if err := c.Start(); err != nil {
		t.Fatalf("first Start() = %v", err)
	}
	if err := c.Start(); err == nil {
		t.Fatal("second Start() = nil, want KindAlreadyStarted")
	} else if ce, ok := err.(*config.Error); !ok || ce.Kind != config.KindAlreadyStarted {
		t.Fatalf("second Start() error = %v, want KindAlreadyStarted", err)
	}
}
