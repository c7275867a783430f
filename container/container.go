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

// Package container implements the supervisor: the parent side of a
// sandbox's lifecycle, from the namespaced re-exec through wait, terminate,
// freeze/thaw and delete.
package container

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/keepctl/keep/config"
	"github.com/keepctl/keep/idmap"
	"github.com/keepctl/keep/internal/log"
	"github.com/keepctl/keep/internal/protocol"
	"golang.org/x/sys/unix"
)

// state is the Container's lifecycle position. See spec.md §3: Unstarted →
// Running → Ended, monotone.
type state int

const (
	stateUnstarted state = iota
	stateRunning
	stateEnded
)

// EnterSubcommand is the hidden argv[1] that internal/cli.Main checks for
// to run entry.RunFromInheritedFDs after the re-exec. Exported so the cli
// package and this package agree on the exact argv[1] without a third place
// having to duplicate the string.
const EnterSubcommand = "__keep_enter__"

// exePath is overridable in tests; production code always re-execs the
// currently running binary, mirroring the teacher's own specutils.ExePath.
var exePath = func() (string, error) {
	return os.Readlink("/proc/self/exe")
}

// Container is a stateful supervisor handle around one Config. It holds at
// most one child PID and is not safe for concurrent use from multiple
// goroutines without external synchronization, beyond the internal mutex
// guarding state transitions.
type Container struct {
	cfg config.Config

	mu    sync.Mutex
	state state
	pid   int

	cmd *exec.Cmd
}

// New constructs a Container from cfg. No side effects.
func New(cfg config.Config) *Container {
	return &Container{cfg: cfg, state: stateUnstarted}
}

// Config returns the container's configuration.
func (c *Container) Config() config.Config { return c.cfg }

// PID returns the child's PID and whether the container has ever started.
func (c *Container) PID() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid, c.state != stateUnstarted
}

// Start clones the child into fresh UTS/IPC/PID/MNT/USER namespaces,
// performs privileged parent-side setup (UID/GID mapping, cgroup
// attachment), releases the child's ready gate, and blocks for its single
// report frame. On success it spawns the deadline watcher and returns; on
// any failure after the child exists, the child is killed before the error
// is returned, per Invariant 5 / §7's propagation policy.
func (c *Container) Start() error {
	c.mu.Lock()
	if c.state != stateUnstarted {
		c.mu.Unlock()
		return config.ErrAlreadyStarted()
	}
	c.mu.Unlock()

	readyRead, readyWrite, err := os.Pipe()
	if err != nil {
		return config.ErrPipeFailed(err)
	}

	reportRead, reportWrite, err := os.Pipe()
	if err != nil {
		readyRead.Close()
		readyWrite.Close()
		return config.ErrPipeFailed(err)
	}

	wireRead, wireWrite, err := os.Pipe()
	if err != nil {
		readyRead.Close()
		readyWrite.Close()
		reportRead.Close()
		reportWrite.Close()
		return config.ErrPipeFailed(err)
	}
	defer wireWrite.Close()

	self, err := exePath()
	if err != nil {
		readyRead.Close()
		readyWrite.Close()
		reportRead.Close()
		reportWrite.Close()
		wireRead.Close()
		wireWrite.Close()
		return config.ErrForkFailed(fmt.Errorf("resolve self exe: %w", err))
	}

	cmd := exec.Command(self, EnterSubcommand)
	cmd.Args[0] = "keep-sandbox"
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	cmd.ExtraFiles = make([]*os.File, protocol.ExtraFiles)
	cmd.ExtraFiles[protocol.ReadyFD-3] = readyRead
	cmd.ExtraFiles[protocol.ReportFD-3] = reportWrite
	cmd.ExtraFiles[protocol.ConfigFD-3] = wireRead
	cmd.SysProcAttr = &unix.SysProcAttr{
		Cloneflags: unix.CLONE_NEWUTS | unix.CLONE_NEWIPC | unix.CLONE_NEWPID |
			unix.CLONE_NEWNS | unix.CLONE_NEWUSER,
	}

	if err := cmd.Start(); err != nil {
		readyRead.Close()
		readyWrite.Close()
		reportRead.Close()
		reportWrite.Close()
		wireRead.Close()
		wireWrite.Close()
		return config.ErrForkFailed(err)
	}

	// Parent no longer needs the child-side ends.
	readyRead.Close()
	reportWrite.Close()
	wireRead.Close()

	pid := cmd.Process.Pid
	log.WithField("pid", pid).Debugf("child cloned")

	// Clone before projecting to wire form: the child frame must reflect a
	// snapshot of c.cfg at this instant, not whatever the caller's Config
	// value happens to alias afterward (the stock policies carry pointers).
	snapshot := c.cfg.Clone()
	wire, err := snapshot.ToWire()
	if err != nil {
		c.killAndReap(cmd)
		readyWrite.Close()
		reportRead.Close()
		wireWrite.Close()
		return config.ErrIO(fmt.Errorf("project config to wire form: %w", err))
	}
	if err := wire.WriteTo(wireWrite); err != nil {
		c.killAndReap(cmd)
		readyWrite.Close()
		reportRead.Close()
		wireWrite.Close()
		return config.ErrPipeFailed(fmt.Errorf("write wire config: %w", err))
	}
	wireWrite.Close()

	if err := idmap.MapToRoot(pid, os.Geteuid(), os.Getegid()); err != nil {
		c.killAndReap(cmd)
		readyWrite.Close()
		reportRead.Close()
		return config.ErrIdMapFailed(err)
	}

	if c.cfg.CGroupLimits != nil {
		if err := c.cfg.CGroupLimits.Apply(c.cfg.UID, pid); err != nil {
			c.killAndReap(cmd)
			readyWrite.Close()
			reportRead.Close()
			return config.ErrCGroupFailed(err)
		}
	}

	// Release the gate: the child may now proceed past its ready read.
	if err := readyWrite.Close(); err != nil {
		c.killAndReap(cmd)
		reportRead.Close()
		return config.ErrPipeFailed(err)
	}

	report, err := protocol.Read(reportRead)
	reportRead.Close()
	if err != nil {
		c.killAndReap(cmd)
		return config.ErrPipeFailed(fmt.Errorf("read report frame: %w", err))
	}

	c.mu.Lock()
	c.pid = pid
	c.cmd = cmd
	c.state = stateRunning
	c.mu.Unlock()

	if !report.Success() {
		// The child is expected to _exit on its own after a failed report,
		// but reap it defensively rather than leaving a zombie.
		c.killAndReap(cmd)
		c.mu.Lock()
		c.state = stateEnded
		c.mu.Unlock()
		return config.ErrEntry(report.Phase, report.Payload)
	}

	c.watchDeadline(c.cfg.TimeLimit)
	return nil
}

// watchDeadline spawns the detached timer goroutine described in spec.md
// §5: it owns only the PID and the duration, sleeps, then sends SIGKILL if
// the child has not already been reaped.
func (c *Container) watchDeadline(limit time.Duration) {
	pid := c.pid
	go func() {
		time.Sleep(limit)
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if err == nil && wpid == 0 {
			// Still alive: deadline exceeded.
			_ = unix.Kill(pid, unix.SIGKILL)
		}
	}()
}

// killAndReap sends SIGKILL and reaps the child, discarding errors: it is
// only ever called on an abort path that is itself about to return a more
// specific error. It reaps via cmd.Wait, not cmd.Process.Wait, so that
// cmd.ProcessState is populated — callers that have already published cmd
// to c.cmd rely on that to make a later Wait/Terminate/Delete/Close
// idempotent instead of re-waiting an already-reaped PID and surfacing a
// spurious ECHILD.
func (c *Container) killAndReap(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
		_, _ = cmd.Wait()
	}
}

// Wait blocks for the child to exit, if it has not already. Idempotent.
func (c *Container) Wait() (*os.ProcessState, error) {
	c.mu.Lock()
	if c.state == stateEnded {
		c.mu.Unlock()
		return c.cmd.ProcessState, nil
	}
	cmd := c.cmd
	c.mu.Unlock()

	if cmd == nil {
		return nil, nil
	}
	err := cmd.Wait()

	c.mu.Lock()
	c.state = stateEnded
	c.mu.Unlock()

	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ProcessState, nil
	}
	return cmd.ProcessState, err
}

// Terminate sends SIGKILL and waits for exit. Idempotent.
func (c *Container) Terminate() error {
	c.mu.Lock()
	ended := c.state == stateEnded
	pid := c.pid
	c.mu.Unlock()
	if ended || pid == 0 {
		return nil
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("terminate: kill %d: %w", pid, err)
	}
	_, err := c.Wait()
	return err
}

// Delete terminates (if needed), deletes the cgroup, and removes the
// workspace directory. Tolerates partial prior cleanup.
func (c *Container) Delete() error {
	if err := c.Terminate(); err != nil {
		log.Warningf("terminate during delete: %v", err)
	}
	if c.cfg.CGroupLimits != nil {
		if err := c.cfg.CGroupLimits.Delete(c.cfg.UID); err != nil {
			return config.ErrCGroupFailed(err)
		}
	}
	workspace := fmt.Sprintf("%s/%d", trimTrailingSlash(c.cfg.WorkingPath), c.cfg.UID)
	if err := os.RemoveAll(workspace); err != nil {
		return config.ErrIO(err)
	}
	return nil
}

// Freeze forwards to the configured cgroup policy.
func (c *Container) Freeze() error {
	if c.cfg.CGroupLimits == nil {
		return nil
	}
	return c.cfg.CGroupLimits.Freeze(c.cfg.UID)
}

// Thaw forwards to the configured cgroup policy.
func (c *Container) Thaw() error {
	if c.cfg.CGroupLimits == nil {
		return nil
	}
	return c.cfg.CGroupLimits.Thaw(c.cfg.UID)
}

// Close runs Delete best-effort, standing in for the reference's Drop. Safe
// to call on a container that never started.
func (c *Container) Close() error {
	c.mu.Lock()
	started := c.state != stateUnstarted
	c.mu.Unlock()
	if !started {
		return nil
	}
	return c.Delete()
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
