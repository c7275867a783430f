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

package security

import (
	"fmt"

	seccomp "github.com/seccomp/libseccomp-golang"
)

// defaultAllow is the minimal syscall set a shell and a handful of common
// coreutils need to run inside the sandbox. Callers building a tighter
// profile for a specific target binary should pass their own allowlist to
// NewSeccompPolicy instead of relying on this default.
var defaultAllow = []string{
	"read", "write", "close", "fstat", "lseek", "mmap", "mprotect", "munmap",
	"brk", "rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "ioctl",
	"access", "pipe", "dup", "dup2", "getpid", "exit", "exit_group",
	"execve", "fcntl", "getcwd", "chdir", "openat", "getdents64", "stat",
	"newfstatat", "arch_prctl", "set_tid_address", "set_robust_list",
	"prlimit64", "futex", "clone", "wait4", "kill", "rseq", "sigaltstack",
	"getrandom", "pread64", "pwrite64",
}

// SeccompPolicy installs a default-deny syscall filter with a configured
// allowlist, using no-new-privs semantics so the filter survives exec.
type SeccompPolicy struct {
	Allow []string
}

// NewSeccompPolicy returns a policy allowing exactly the named syscalls;
// nothing is added for exec(2) beyond what the list names. With no
// arguments it falls back to defaultAllow.
func NewSeccompPolicy(allow ...string) *SeccompPolicy {
	if len(allow) == 0 {
		allow = defaultAllow
	}
	return &SeccompPolicy{Allow: allow}
}

// String implements fmt.Stringer.
func (s *SeccompPolicy) String() string {
	return fmt.Sprintf("seccomp(allow=%d syscalls)", len(s.Allow))
}

// Apply sets no-new-privs and loads a default-deny (EPERM) BPF filter that
// allows only the configured syscalls. Because no-new-privs is set first,
// loading the filter does not need CAP_SYS_ADMIN, so it still succeeds after
// the capability policy has dropped every capability.
func (s *SeccompPolicy) Apply() error {
	filter, err := seccomp.NewFilter(seccomp.ActErrno.SetReturnCode(int16(1) /* EPERM */))
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()

	if err := filter.SetNoNewPrivsBit(true); err != nil {
		return fmt.Errorf("set no-new-privs: %w", err)
	}

	for _, name := range s.Allow {
		id, err := seccomp.GetSyscallFromName(name)
		if err != nil {
			return fmt.Errorf("unknown syscall %q: %w", name, err)
		}
		if err := filter.AddRule(id, seccomp.ActAllow); err != nil {
			return fmt.Errorf("allow %s: %w", name, err)
		}
	}

	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}
