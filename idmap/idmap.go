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

// Package idmap writes the UID/GID mappings that let a child process's
// in-container root map to the supervisor's effective UID/GID.
package idmap

import (
	"fmt"
	"os"
)

// MapToRoot writes /proc/<pid>/setgroups, uid_map and gid_map so that uid 0
// inside the child's user namespace maps to euid/egid in the supervisor's
// namespace. Must be called before the child's ready gate is released: the
// child performs privileged-in-userns operations (mounts, pivot_root)
// immediately after, and those require a valid mapping to already be in
// place.
func MapToRoot(pid, euid, egid int) error {
	// setgroups must be written "deny" before gid_map, or the kernel
	// refuses to let an unprivileged writer set a gid_map with more than
	// the identity mapping.
	if err := writeProcFile(pid, "setgroups", "deny"); err != nil {
		return fmt.Errorf("write setgroups: %w", err)
	}
	if err := writeProcFile(pid, "uid_map", fmt.Sprintf("0 %d 1", euid)); err != nil {
		return fmt.Errorf("write uid_map: %w", err)
	}
	if err := writeProcFile(pid, "gid_map", fmt.Sprintf("0 %d 1", egid)); err != nil {
		return fmt.Errorf("write gid_map: %w", err)
	}
	return nil
}

func writeProcFile(pid int, name, value string) error {
	path := fmt.Sprintf("/proc/%d/%s", pid, name)
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(value); err != nil {
		return err
	}
	return nil
}
