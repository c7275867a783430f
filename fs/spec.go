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

package fs

import (
	"fmt"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Kind tags a mount step's concrete type across the child re-exec boundary.
// The supervisor never shares live Step values with the child process (they
// aren't serializable, and wouldn't survive execve anyway); it serializes a
// StepSpec per step instead, and the child reconstructs the concrete Step
// from it.
type Kind string

// The stock step kinds. Custom steps are not supported across the re-exec
// boundary — only these four need to be.
const (
	KindTmpFS          Kind = "tmpfs"
	KindProcFS         Kind = "procfs"
	KindReadOnlyBindFS Kind = "ro-bind"
	KindExtraBindFS    Kind = "extra-binds"
)

// StepSpec is the wire representation of a Step.
type StepSpec struct {
	Kind   Kind          `json:"kind"`
	Source string        `json:"source,omitempty"`
	Mounts []specs.Mount `json:"mounts,omitempty"`
}

// Spec returns the wire representation of a stock step. Custom Step
// implementations are expected to provide their own equivalent if they need
// to cross the re-exec boundary; Spec is not part of the Step interface on
// purpose, since most embedders have no state worth serializing.
func Spec(s Step) (StepSpec, error) {
	switch v := s.(type) {
	case *TmpFS:
		return StepSpec{Kind: KindTmpFS}, nil
	case *ProcFS:
		return StepSpec{Kind: KindProcFS}, nil
	case *ReadOnlyBindFS:
		return StepSpec{Kind: KindReadOnlyBindFS, Source: v.Source}, nil
	case *ExtraBindFS:
		return StepSpec{Kind: KindExtraBindFS, Mounts: v.Mounts}, nil
	default:
		return StepSpec{}, fmt.Errorf("fs: step %s has no wire representation", s)
	}
}

// FromSpec reconstructs a stock Step from its wire representation.
func FromSpec(spec StepSpec) (Step, error) {
	switch spec.Kind {
	case KindTmpFS:
		return NewTmpFS(), nil
	case KindProcFS:
		return NewProcFS(), nil
	case KindReadOnlyBindFS:
		return NewReadOnlyBindFS(spec.Source), nil
	case KindExtraBindFS:
		return NewExtraBindFS(spec.Mounts), nil
	default:
		return nil, fmt.Errorf("fs: unknown step kind %q", spec.Kind)
	}
}
