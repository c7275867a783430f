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

// Package protocol implements the report-pipe wire format shared by the
// supervisor (reader) and the child entry point (writer): one status byte,
// and — only when that byte is non-zero — an 8-byte little-endian length
// followed by that many bytes of UTF-8 payload.
//
// The reference implementation this spec was distilled from reads a
// native-endian platform usize for the length, which is unsafe across
// differing-ABI parent/child pairs. This is pinned to a fixed 8-byte
// little-endian width instead, per the reference's own documented caveat.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Phase identifies which step of child bring-up produced a non-zero status
// byte, so the supervisor's decoded error can say where things went wrong.
type Phase byte

// The phases child bring-up can fail in, in protocol order.
const (
	PhaseMountLoading Phase = iota + 1
	PhasePivot
	PhaseMountLoaded
	PhaseStdio
	PhaseSetID
	PhaseSecurity
	PhaseExec
)

func (p Phase) String() string {
	switch p {
	case PhaseMountLoading:
		return "mount-loading"
	case PhasePivot:
		return "pivot"
	case PhaseMountLoaded:
		return "mount-loaded"
	case PhaseStdio:
		return "stdio"
	case PhaseSetID:
		return "setid"
	case PhaseSecurity:
		return "security"
	case PhaseExec:
		return "exec"
	default:
		return fmt.Sprintf("phase(%d)", byte(p))
	}
}

// WriteSuccess writes the single zero status byte that tells the supervisor
// the child is about to exec the target.
func WriteSuccess(w io.Writer) error {
	_, err := w.Write([]byte{0})
	return err
}

// WriteFailure writes a non-zero status byte naming phase, followed by the
// length-prefixed UTF-8 payload.
func WriteFailure(w io.Writer, phase Phase, payload string) error {
	if phase == 0 {
		panic("protocol: WriteFailure called with zero phase")
	}
	if _, err := w.Write([]byte{byte(phase)}); err != nil {
		return err
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, payload)
	return err
}

// Report is a decoded report frame.
type Report struct {
	// Phase is zero on success.
	Phase   Phase
	Payload string
}

// Success reports whether the frame represents a successful bring-up.
func (r Report) Success() bool { return r.Phase == 0 }

// Read blocks until exactly one report frame has been read from r.
func Read(r io.Reader) (Report, error) {
	var statusBuf [1]byte
	if _, err := io.ReadFull(r, statusBuf[:]); err != nil {
		return Report{}, fmt.Errorf("read status byte: %w", err)
	}
	if statusBuf[0] == 0 {
		return Report{}, nil
	}

	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Report{}, fmt.Errorf("read payload length: %w", err)
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Report{}, fmt.Errorf("read payload: %w", err)
	}
	return Report{Phase: Phase(statusBuf[0]), Payload: string(payload)}, nil
}
