// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trbnet provides access to TrbNet endpoints, either through the
// libtrbnet shared library, through the trbcmd command-line tool or by
// recording the commands that would have been sent.
package trbnet // import "github.com/go-lpc/pasttrec/trbnet"

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResponse is returned when no endpoint answered a read request.
	ErrNoResponse = errors.New("trbnet: no response")
)

// Reply is the answer of a single endpoint to a register read.
// A broadcast read yields one Reply per responding endpoint.
type Reply struct {
	Board uint16 // address of the responding endpoint
	Value uint32
}

// Bus is a serial, single-owner TrbNet access point.
type Bus interface {
	// Read reads register reg of board.
	Read(board, reg uint16) ([]Reply, error)
	// Write writes v into register reg of board.
	Write(board, reg uint16, v uint32) error
	// WriteMem writes a block of words starting at register reg.
	WriteMem(board, reg uint16, data []uint32, mode uint8) error
	// ReadMem reads n words starting at register reg, for each responder.
	ReadMem(board, reg uint16, n int, mode uint8) (map[uint16][]uint32, error)

	Close() error
}

// Addr formats a TrbNet address the way trbcmd expects it.
func Addr(v uint16) string {
	return fmt.Sprintf("0x%04x", v)
}
