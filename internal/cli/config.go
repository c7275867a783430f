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

// Package cli wires the keep binary's user-facing subcommands on top of
// google/subcommands, the same registration style the teacher uses for its
// own command surface.
package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mattbaird/jsonpatch"

	"github.com/keepctl/keep/cgroup"
	"github.com/keepctl/keep/config"
	"github.com/keepctl/keep/fs"
	"github.com/keepctl/keep/internal/log"
	"github.com/keepctl/keep/security"
)

// fileConfig is the TOML-decodable projection of config.Config. Interface
// fields (fs.Step, security.Policy, cgroup.Policy) are represented the same
// tagged-spec way config.Wire represents them across the re-exec boundary,
// so a human can write "kind = \"tmpfs\"" in a config file the same way the
// supervisor encodes it for the child.
type fileConfig struct {
	UID              *uint64           `toml:"uid"`
	WorkingPath      string            `toml:"working_path"`
	Hostname         string            `toml:"hostname"`
	TargetExecutable string            `toml:"target_executable"`
	FS               []fs.StepSpec     `toml:"fs"`
	SecurityPolicies []security.PolicySpec `toml:"security_policies"`
	InnerUID         uint32            `toml:"inner_uid"`
	InnerGID         uint32            `toml:"inner_gid"`
	TimeLimitMillis  int64             `toml:"time_limit_ms"`
	Stdin            string            `toml:"stdin"`
	Stdout           string            `toml:"stdout"`
	Stderr           string            `toml:"stderr"`

	CGroup struct {
		MemoryLimitBytes *int64  `toml:"memory_limit_bytes"`
		PidsLimit        *int64  `toml:"pids_limit"`
		CPUShares        *uint64 `toml:"cpu_shares"`
		CPUQuota         *int64  `toml:"cpu_quota"`
		CPUPeriod        *uint64 `toml:"cpu_period"`
		UseSystemd       bool    `toml:"use_systemd"`
	} `toml:"cgroup"`
}

// LoadConfig reads a TOML file at path into a config.Config, starting from
// config.Default() for any field the file omits. When the file is empty or
// absent (path == ""), the default configuration is returned unmodified.
func LoadConfig(path string) (config.Config, error) {
	base := config.Default()
	if path == "" {
		return base, nil
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return config.Config{}, fmt.Errorf("decode %s: %w", path, err)
	}

	logConfigDiff(base, fc)

	cfg := base
	if fc.UID != nil {
		cfg.UID = *fc.UID
	}
	if fc.WorkingPath != "" {
		cfg.WorkingPath = fc.WorkingPath
	}
	if fc.Hostname != "" {
		cfg.Hostname = fc.Hostname
	}
	if fc.TargetExecutable != "" {
		cfg.TargetExecutable = fc.TargetExecutable
	}
	if len(fc.FS) > 0 {
		steps := make([]fs.Step, 0, len(fc.FS))
		for _, spec := range fc.FS {
			step, err := fs.FromSpec(spec)
			if err != nil {
				return config.Config{}, fmt.Errorf("fs step: %w", err)
			}
			steps = append(steps, step)
		}
		cfg.FS = steps
	}
	if len(fc.SecurityPolicies) > 0 {
		policies := make([]security.Policy, 0, len(fc.SecurityPolicies))
		for _, spec := range fc.SecurityPolicies {
			policy, err := security.FromSpec(spec)
			if err != nil {
				return config.Config{}, fmt.Errorf("security policy: %w", err)
			}
			policies = append(policies, policy)
		}
		cfg.SecurityPolicies = policies
	}
	cfg.InnerUID = fc.InnerUID
	cfg.InnerGID = fc.InnerGID
	if fc.TimeLimitMillis > 0 {
		cfg.TimeLimit = time.Duration(fc.TimeLimitMillis) * time.Millisecond
	}
	if fc.Stdin != "" {
		cfg.Stdin = fc.Stdin
	}
	if fc.Stdout != "" {
		cfg.Stdout = fc.Stdout
	}
	if fc.Stderr != "" {
		cfg.Stderr = fc.Stderr
	}
	cfg.CGroupLimits = cgroup.NewContainerdPolicy(cgroup.Limits{
		MemoryLimitBytes: fc.CGroup.MemoryLimitBytes,
		PidsLimit:        fc.CGroup.PidsLimit,
		CPUShares:        fc.CGroup.CPUShares,
		CPUQuota:         fc.CGroup.CPUQuota,
		CPUPeriod:        fc.CGroup.CPUPeriod,
		UseSystemd:       fc.CGroup.UseSystemd,
	})

	return cfg, nil
}

// logConfigDiff computes and debug-logs the JSON patch between the default
// configuration and the file's overrides, so an operator can see exactly
// what a config file changed without diffing TOML by eye.
func logConfigDiff(base config.Config, fc fileConfig) {
	baseJSON, err := json.Marshal(fileConfigFrom(base))
	if err != nil {
		return
	}
	fileJSON, err := json.Marshal(fc)
	if err != nil {
		return
	}
	patch, err := jsonpatch.CreatePatch(baseJSON, fileJSON)
	if err != nil {
		log.Debugf("config diff: %v", err)
		return
	}
	if len(patch) == 0 {
		return
	}
	ops, err := json.Marshal(patch)
	if err != nil {
		return
	}
	log.WithField("ops", string(ops)).Debugf("config file overrides defaults")
}

func fileConfigFrom(c config.Config) fileConfig {
	var fc fileConfig
	fc.UID = &c.UID
	fc.WorkingPath = c.WorkingPath
	fc.Hostname = c.Hostname
	fc.TargetExecutable = c.TargetExecutable
	fc.InnerUID = c.InnerUID
	fc.InnerGID = c.InnerGID
	fc.TimeLimitMillis = c.TimeLimit.Milliseconds()
	fc.Stdin = c.Stdin
	fc.Stdout = c.Stdout
	fc.Stderr = c.Stderr
	for _, step := range c.FS {
		if spec, err := fs.Spec(step); err == nil {
			fc.FS = append(fc.FS, spec)
		}
	}
	for _, policy := range c.SecurityPolicies {
		if spec, err := security.Spec(policy); err == nil {
			fc.SecurityPolicies = append(fc.SecurityPolicies, spec)
		}
	}
	return fc
}
