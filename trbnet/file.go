// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trbnet

import (
	"fmt"
	"io"
	"strings"
)

// File is a Bus that records the trbcmd commands it would have run.
// Reads record the command and return no data.
type File struct {
	w   io.Writer
	err error
}

// NewFile returns a recording Bus writing into w.
func NewFile(w io.Writer) *File {
	return &File{w: w}
}

func (f *File) printf(format string, args ...interface{}) {
	if f.err != nil {
		return
	}
	_, f.err = fmt.Fprintf(f.w, format, args...)
}

func (f *File) cmd(args []string) {
	f.printf("trbcmd %s\n", strings.Join(args, " "))
}

func (f *File) Read(board, reg uint16) ([]Reply, error) {
	f.cmd(cmdR(board, reg))
	return nil, f.err
}

func (f *File) Write(board, reg uint16, v uint32) error {
	f.cmd(cmdW(board, reg, v))
	return f.err
}

func (f *File) WriteMem(board, reg uint16, data []uint32, mode uint8) error {
	args := cmdWM(board, reg, mode)
	f.printf("trbcmd %s << EOF\n%sEOF\n", strings.Join(args, " "), memInput(data))
	return f.err
}

func (f *File) ReadMem(board, reg uint16, n int, mode uint8) (map[uint16][]uint32, error) {
	f.cmd(cmdRM(board, reg, n, mode))
	return nil, f.err
}

func (f *File) Close() error {
	if f.err != nil {
		return fmt.Errorf("trbnet: could not record commands: %w", f.err)
	}
	return nil
}

var _ Bus = (*File)(nil)
