// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trbnet

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Shell is a Bus that runs the trbcmd executable for each transaction.
type Shell struct {
	exe string
}

// NewShell returns a Bus driving the trbcmd executable found at exe.
func NewShell(exe string) *Shell {
	if exe == "" {
		exe = "trbcmd"
	}
	return &Shell{exe: exe}
}

func (sh *Shell) run(stdin io.Reader, args ...string) (string, error) {
	var (
		stdout bytes.Buffer
		stderr bytes.Buffer
		cmd    = exec.Command(sh.exe, args...)
	)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return "", fmt.Errorf(
			"trbnet: could not run '%s %s': %w (stderr=%q)",
			sh.exe, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()),
		)
	}
	return stdout.String(), nil
}

func (sh *Shell) Read(board, reg uint16) ([]Reply, error) {
	out, err := sh.run(nil, cmdR(board, reg)...)
	if err != nil {
		return nil, err
	}
	reps, err := parseReplies(out)
	if err != nil {
		return nil, err
	}
	if len(reps) == 0 {
		return nil, fmt.Errorf("trbnet: could not read %s@%s: %w", Addr(reg), Addr(board), ErrNoResponse)
	}
	return reps, nil
}

func (sh *Shell) Write(board, reg uint16, v uint32) error {
	_, err := sh.run(nil, cmdW(board, reg, v)...)
	return err
}

func (sh *Shell) WriteMem(board, reg uint16, data []uint32, mode uint8) error {
	_, err := sh.run(strings.NewReader(memInput(data)), cmdWM(board, reg, mode)...)
	return err
}

func (sh *Shell) ReadMem(board, reg uint16, n int, mode uint8) (map[uint16][]uint32, error) {
	out, err := sh.run(nil, cmdRM(board, reg, n, mode)...)
	if err != nil {
		return nil, err
	}
	return parseMem(out, reg, n)
}

func (sh *Shell) Close() error { return nil }

var _ Bus = (*Shell)(nil)
