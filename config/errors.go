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

package config

import (
	"fmt"

	"github.com/keepctl/keep/internal/protocol"
)

// Kind identifies which part of the container lifecycle an Error came from.
type Kind string

// The error kinds the core surfaces. Matches spec.md §7's taxonomy.
const (
	KindAlreadyStarted Kind = "already_started"
	KindForkFailed     Kind = "fork_failed"
	KindPipeFailed     Kind = "pipe_failed"
	KindIdMapFailed    Kind = "idmap_failed"
	KindCGroupFailed   Kind = "cgroup_failed"
	KindEntryError     Kind = "entry_error"
	KindIO             Kind = "io"
)

// Error is the error type every supervisor operation returns on failure. It
// always carries a Kind so callers can branch on the taxonomy with
// errors.As, and wraps its cause (if any) so errors.Is/errors.Unwrap work
// through it, matching the teacher's own fmt.Errorf("...: %w", err) idiom.
type Error struct {
	Kind Kind
	// Phase is set only for KindEntryError: it names the child bring-up
	// step (mount-loading, pivot, mount-loaded, stdio, setid, security,
	// exec) that failed.
	Phase   protocol.Phase
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Kind == KindEntryError {
		if e.Message != "" {
			return fmt.Sprintf("entry error in phase %s: %s", e.Phase, e.Message)
		}
		return fmt.Sprintf("entry error in phase %s", e.Phase)
	}
	if e.Cause != nil {
		if e.Message != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

// Unwrap lets errors.Is/errors.As see through to Cause.
func (e *Error) Unwrap() error { return e.Cause }

// ErrAlreadyStarted reports that start() was called on a non-Unstarted
// container.
func ErrAlreadyStarted() error {
	return &Error{Kind: KindAlreadyStarted}
}

// ErrForkFailed wraps a clone(2)/exec(2) failure.
func ErrForkFailed(cause error) error {
	return &Error{Kind: KindForkFailed, Cause: cause}
}

// ErrPipeFailed wraps a pipe(2) or control-pipe read/close failure.
func ErrPipeFailed(cause error) error {
	return &Error{Kind: KindPipeFailed, Cause: cause}
}

// ErrIdMapFailed wraps a uid_map/gid_map/setgroups write failure.
func ErrIdMapFailed(cause error) error {
	return &Error{Kind: KindIdMapFailed, Cause: cause}
}

// ErrCGroupFailed wraps an apply/freeze/thaw/delete failure from the
// configured cgroup.Policy.
func ErrCGroupFailed(cause error) error {
	return &Error{Kind: KindCGroupFailed, Cause: cause}
}

// ErrEntry wraps a non-zero report frame from the child.
func ErrEntry(phase protocol.Phase, payload string) error {
	return &Error{Kind: KindEntryError, Phase: phase, Message: payload}
}

// ErrIO wraps a workspace directory creation/removal failure.
func ErrIO(cause error) error {
	return &Error{Kind: KindIO, Cause: cause}
}
