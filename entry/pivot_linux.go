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
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// pivot replaces the calling process's root with newRoot and detaches the
// old one, following the well-known pivot_root(".", ".") dance: the new
// root must be a mount point, so newRoot is bind-mounted onto itself first.
// The old root ends up stacked at newRoot itself (since putold == new) and
// is then lazily unmounted, leaving no trace of the host filesystem visible
// from inside the new root.
func pivot(newRoot string) error {
	if err := unix.Mount(newRoot, newRoot, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind new root onto itself: %w", err)
	}

	oldRootFd, err := os.Open("/")
	if err != nil {
		return fmt.Errorf("open old root: %w", err)
	}
	defer oldRootFd.Close()

	if err := os.Chdir(newRoot); err != nil {
		return fmt.Errorf("chdir to new root: %w", err)
	}
	if err := unix.PivotRoot(".", "."); err != nil {
		return fmt.Errorf("pivot_root: %w", err)
	}

	if err := unix.Fchdir(int(oldRootFd.Fd())); err != nil {
		return fmt.Errorf("fchdir to old root: %w", err)
	}
	if err := unix.Mount("", ".", "", unix.MS_SLAVE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("make old root rslave: %w", err)
	}
	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return fmt.Errorf("detach old root: %w", err)
	}

	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir to new /: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func newRootPath(workingPath string, uid uint64) string {
	return filepath.Join(workingPath, fmt.Sprint(uid), "root")
}
