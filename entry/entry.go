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

// Package entry implements the child side of a sandbox's bring-up: the
// code that runs after the re-exec into the hidden "enter" subcommand, in
// the freshly unshared namespaces, up to the moment it execs the target
// binary. It is the Go re-exec counterpart of the reference's clone(2)
// child closure; see the supervisor package for the parent side.
package entry

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/keepctl/keep/config"
	"github.com/keepctl/keep/fs"
	"github.com/keepctl/keep/internal/log"
	"github.com/keepctl/keep/internal/protocol"
	"github.com/keepctl/keep/security"
	"golang.org/x/sys/unix"
)

// failExitCode is returned when bring-up fails before the success byte is
// written. It is distinct from execFailExitCode so a caller inspecting the
// child's wait status can tell the two apart even without the report pipe.
const failExitCode = 125

// execFailExitCode mirrors the shell/docker convention for "could not
// exec the target" (command not found / not executable).
const execFailExitCode = 127

// Run is the entry point for the re-exec'd child. It never returns: every
// path ends in exec of the target or os.Exit. The config is decoded from
// wire, ready is read until EOF, and report is written to before the
// process exits or execs, per the fds named in internal/protocol.
func Run(ready *os.File, wire *os.File, report *os.File) {
	wireCfg, err := config.ReadWire(wire)
	if err != nil {
		fail(report, protocol.PhaseMountLoading, fmt.Sprintf("read wire config: %v", err))
	}
	wire.Close()

	steps, policies, err := wireCfg.Hydrate()
	if err != nil {
		fail(report, protocol.PhaseMountLoading, fmt.Sprintf("hydrate wire config: %v", err))
	}

	// Step 1: block until the supervisor has finished id-mapping and
	// applying cgroup limits and closes the gate. The gate carries no
	// data, only EOF, so draining it is enough to wait for the close.
	if _, err := io.Copy(io.Discard, ready); err != nil {
		fail(report, protocol.PhaseMountLoading, fmt.Sprintf("read ready pipe: %v", err))
	}
	ready.Close()

	// Step 2: set the container's hostname, now that CLONE_NEWUTS has
	// taken effect.
	if err := unix.Sethostname([]byte(wireCfg.Hostname)); err != nil {
		fail(report, protocol.PhaseMountLoading, fmt.Sprintf("sethostname: %v", err))
	}

	// Step 3: compute and create the new-root directory that the pivot
	// will make "/".
	newRoot := newRootPath(wireCfg.WorkingPath, wireCfg.UID)
	if err := ensureDir(newRoot); err != nil {
		fail(report, protocol.PhaseMountLoading, fmt.Sprintf("mkdir new root: %v", err))
	}

	// Step 4: run every mount step's pre-pivot half.
	if err := fs.RunLoading(steps, newRoot); err != nil {
		fail(report, protocol.PhaseMountLoading, err.Error())
	}

	// Step 5: pivot_root into the assembled new root.
	if err := pivot(newRoot); err != nil {
		fail(report, protocol.PhasePivot, err.Error())
	}

	// Step 6: run every mount step's post-pivot half.
	if err := fs.RunLoaded(steps); err != nil {
		fail(report, protocol.PhaseMountLoaded, err.Error())
	}

	// Step 7: redirect stdio onto the configured paths, if any were given.
	if err := redirectStdio(wireCfg.Stdin, wireCfg.Stdout, wireCfg.Stderr); err != nil {
		fail(report, protocol.PhaseStdio, err.Error())
	}

	// Step 8: drop to the configured inner identity.
	if err := setInnerID(wireCfg.InnerGID, wireCfg.InnerUID); err != nil {
		fail(report, protocol.PhaseSetID, err.Error())
	}

	// Step 9: apply every security policy (capabilities, then seccomp).
	if err := security.Run(policies); err != nil {
		fail(report, protocol.PhaseSecurity, err.Error())
	}

	// Step 10: the point of no return. Tell the supervisor bring-up
	// succeeded, then exec. Per spec, the supervisor does not wait to
	// confirm exec's actual outcome once this byte lands: it spawns the
	// deadline watcher and returns. If exec itself fails to even start
	// (ENOENT, EACCES, ...), there is no canonical way left to report it
	// over the report pipe — the supervisor has already moved on — so
	// this makes a best-effort diagnostic write anyway (harmless if
	// nobody's listening) and exits with execFailExitCode, the
	// shell/docker convention for "could not run the command".
	if err := protocol.WriteSuccess(report); err != nil {
		// The supervisor isn't reading; nothing more to do but die.
		os.Exit(failExitCode)
	}

	target := wireCfg.TargetExecutable
	path, lookErr := exec.LookPath(target)
	if lookErr != nil {
		path = target
	}
	execErr := syscall.Exec(path, []string{target}, os.Environ())

	// syscall.Exec only returns on failure. The supervisor has already
	// observed the success byte and moved on by now, so this second frame
	// is purely diagnostic for anyone tailing the report pipe directly.
	log.Errorf("exec %s: %v", target, execErr)
	_ = protocol.WriteFailure(report, protocol.PhaseExec, execErr.Error())
	report.Close()
	os.Exit(execFailExitCode)
}

// fail writes a failure frame naming phase and message, then exits with
// failExitCode. It never returns.
func fail(report *os.File, phase protocol.Phase, message string) {
	if err := protocol.WriteFailure(report, phase, message); err != nil {
		log.Errorf("write failure report: %v", err)
	}
	os.Exit(failExitCode)
}

// redirectStdio dups fds 0/1/2 over the named paths, leaving any unset path
// as the inherited descriptor.
func redirectStdio(stdin, stdout, stderr string) error {
	if stdin != "" {
		f, err := os.OpenFile(stdin, os.O_RDONLY, 0)
		if err != nil {
			return fmt.Errorf("open stdin %s: %w", stdin, err)
		}
		if err := dup2(f, unix.Stdin); err != nil {
			return err
		}
	}
	if stdout != "" {
		f, err := os.OpenFile(stdout, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("open stdout %s: %w", stdout, err)
		}
		if err := dup2(f, unix.Stdout); err != nil {
			return err
		}
	}
	if stderr != "" {
		f, err := os.OpenFile(stderr, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("open stderr %s: %w", stderr, err)
		}
		if err := dup2(f, unix.Stderr); err != nil {
			return err
		}
	}
	return nil
}

func dup2(f *os.File, newFd int) error {
	defer f.Close()
	return unix.Dup2(int(f.Fd()), newFd)
}

// setInnerID drops the process's gid then uid to the configured inner
// identity. Order matters: dropping uid first would remove the
// permission needed to still change gid.
func setInnerID(gid, uid uint32) error {
	if err := unix.Setgid(int(gid)); err != nil {
		return fmt.Errorf("setgid(%d): %w", gid, err)
	}
	if err := unix.Setuid(int(uid)); err != nil {
		return fmt.Errorf("setuid(%d): %w", uid, err)
	}
	return nil
}
