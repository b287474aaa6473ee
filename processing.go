// Copyright 2019 Alexandros Frantzis
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
//
// SPDX-License-Identifier: MPL-2.0

package mda

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ProcessOutput is the result of running an Email through an external
// filter command via Process: the command's exit status and everything
// it wrote to standard output.
type ProcessOutput struct {
	ExitCode int
	Stdout   []byte
}

// FromFilteredStdin runs argv with its standard input inherited from the
// current process and constructs an Email from its standard output.
func FromFilteredStdin(argv []string) (*Email, error) {
	if len(argv) == 0 {
		return nil, errors.New("mda: empty filter command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin

	stdout, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("mda: running filter %v: %w", argv, err)
	}
	return FromBytes(stdout)
}

// Process runs this Email's raw bytes through argv, writing them to the
// child's standard input and capturing its standard output, and reports
// the child's exit status alongside the captured bytes. A non-zero exit
// is not itself an error: the caller inspects ExitCode.
func (e *Email) Process(argv []string) (*ProcessOutput, error) {
	if len(argv) == 0 {
		return nil, errors.New("mda: empty filter command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(e.raw)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("mda: running filter %v: %w", argv, err)
		}
	}

	return &ProcessOutput{ExitCode: exitCode, Stdout: stdout.Bytes()}, nil
}

// Filter runs this Email's raw bytes through argv and constructs a new
// Email from the child's captured standard output. A non-zero exit
// status is treated as a filter failure.
func (e *Email) Filter(argv []string) (*Email, error) {
	out, err := e.Process(argv)
	if err != nil {
		return nil, err
	}
	if out.ExitCode != 0 {
		return nil, fmt.Errorf("mda: filter %v exited with status %d", argv, out.ExitCode)
	}
	return FromBytes(out.Stdout)
}
