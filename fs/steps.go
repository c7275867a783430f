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

package fs

import (
	"fmt"
	"path/filepath"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

// TmpFS mounts a fresh tmpfs at /tmp. Post-pivot only: /tmp refers to the new
// root's /tmp by the time Loaded runs.
type TmpFS struct{ Base }

// NewTmpFS returns the stock /tmp mount step.
func NewTmpFS() *TmpFS { return &TmpFS{Base{Kind: "tmpfs:/tmp"}} }

// Loaded mounts tmpfs at /tmp inside the new root.
func (t *TmpFS) Loaded() error {
	if err := unix.Mount("tmpfs", "/tmp", "tmpfs", 0, ""); err != nil {
		return fmt.Errorf("mount tmpfs at /tmp: %w", err)
	}
	return nil
}

// ProcFS mounts a fresh procfs at /proc. Required for a working /proc since
// the PID namespace is new; post-pivot only.
type ProcFS struct{ Base }

// NewProcFS returns the stock /proc mount step.
func NewProcFS() *ProcFS { return &ProcFS{Base{Kind: "proc:/proc"}} }

// Loaded mounts proc at /proc inside the new root.
func (p *ProcFS) Loaded() error {
	if err := unix.Mount("proc", "/proc", "proc", 0, ""); err != nil {
		return fmt.Errorf("mount proc at /proc: %w", err)
	}
	return nil
}

// ReadOnlyBindFS recursively bind-mounts a host directory tree as the new
// root's base, then remounts it read-only. Pre-pivot only: Source is a
// host-visible path, mounted onto the future new root.
type ReadOnlyBindFS struct {
	Base
	Source string
}

// NewReadOnlyBindFS returns a step that binds source read-only as the new
// root base.
func NewReadOnlyBindFS(source string) *ReadOnlyBindFS {
	return &ReadOnlyBindFS{Base{Kind: "ro-bind:" + source}, source}
}

// Loading recursively bind-mounts Source onto base, then remounts read-only.
func (r *ReadOnlyBindFS) Loading(base string) error {
	if err := unix.Mount(r.Source, base, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("recursive bind %s -> %s: %w", r.Source, base, err)
	}
	flags := unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY
	if err := unix.Mount(r.Source, base, "", uintptr(flags), ""); err != nil {
		return fmt.Errorf("remount %s read-only: %w", base, err)
	}
	return nil
}

// ExtraBindFS aggregates caller-specified host -> container bind mounts,
// typed as OCI runtime-spec mounts so the same Source/Destination/Options
// shape used by the rest of the container ecosystem describes them. Applied
// pre-pivot, relative to base, so host sources are still reachable.
type ExtraBindFS struct {
	Base
	Mounts []specs.Mount
}

// NewExtraBindFS returns a step that binds every entry of mounts onto base.
func NewExtraBindFS(mounts []specs.Mount) *ExtraBindFS {
	return &ExtraBindFS{Base{Kind: fmt.Sprintf("extra-binds:%d", len(mounts))}, mounts}
}

// Loading bind-mounts every configured host path under base.
func (e *ExtraBindFS) Loading(base string) error {
	for _, m := range e.Mounts {
		target := filepath.Join(base, m.Destination)
		if err := unix.Mount(m.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("bind %s -> %s: %w", m.Source, target, err)
		}
		if !containsOption(m.Options, "rw") {
			flags := unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY
			if err := unix.Mount(m.Source, target, "", uintptr(flags), ""); err != nil {
				return fmt.Errorf("remount %s read-only: %w", target, err)
			}
		}
	}
	return nil
}

func containsOption(opts []string, want string) bool {
	for _, o := range opts {
		if o == want {
			return true
		}
	}
	return false
}
