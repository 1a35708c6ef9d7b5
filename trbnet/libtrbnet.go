// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build libtrbnet

package trbnet

//#cgo LDFLAGS: -ltrbnet
//
//#include <stdlib.h>
//#include <stdint.h>
//#include <trbnet.h>
//#include <trberror.h>
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

const haveLibTrbNet = true

// maxResponders bounds the number of endpoints answering a broadcast.
const maxResponders = 256

type libtrbnet struct {
	mu sync.Mutex
}

func newLibTrbNet() (Bus, error) {
	rc := C.init_ports()
	if rc < 0 {
		return nil, fmt.Errorf("trbnet: could not initialize libtrbnet ports: %s", lastError())
	}
	return &libtrbnet{}, nil
}

func lastError() string {
	return C.GoString(C.trb_strerror())
}

func (lib *libtrbnet) Read(board, reg uint16) ([]Reply, error) {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	buf := make([]uint32, 2*maxResponders)
	rc := C.trb_register_read(
		C.uint16_t(board), C.uint16_t(reg),
		(*C.uint32_t)(unsafe.Pointer(&buf[0])), C.uint(len(buf)),
	)
	switch {
	case rc < 0:
		return nil, fmt.Errorf(
			"trbnet: could not read %s@%s: %s",
			Addr(reg), Addr(board), lastError(),
		)
	case rc == 0:
		return nil, fmt.Errorf("trbnet: could not read %s@%s: %w", Addr(reg), Addr(board), ErrNoResponse)
	}
	return pairReplies(buf[:int(rc)]), nil
}

func (lib *libtrbnet) Write(board, reg uint16, v uint32) error {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	rc := C.trb_register_write(C.uint16_t(board), C.uint16_t(reg), C.uint32_t(v))
	if rc < 0 {
		return fmt.Errorf(
			"trbnet: could not write 0x%08x to %s@%s: %s",
			v, Addr(reg), Addr(board), lastError(),
		)
	}
	return nil
}

func (lib *libtrbnet) WriteMem(board, reg uint16, data []uint32, mode uint8) error {
	if len(data) == 0 {
		return nil
	}
	lib.mu.Lock()
	defer lib.mu.Unlock()

	rc := C.trb_register_write_mem(
		C.uint16_t(board), C.uint16_t(reg), C.uint8_t(mode),
		(*C.uint32_t)(unsafe.Pointer(&data[0])), C.uint16_t(len(data)),
	)
	if rc < 0 {
		return fmt.Errorf(
			"trbnet: could not write %d words to %s@%s: %s",
			len(data), Addr(reg), Addr(board), lastError(),
		)
	}
	return nil
}

func (lib *libtrbnet) ReadMem(board, reg uint16, n int, mode uint8) (map[uint16][]uint32, error) {
	lib.mu.Lock()
	defer lib.mu.Unlock()

	buf := make([]uint32, (n+1)*maxResponders)
	rc := C.trb_register_read_mem(
		C.uint16_t(board), C.uint16_t(reg), C.uint8_t(mode), C.uint16_t(n),
		(*C.uint32_t)(unsafe.Pointer(&buf[0])), C.uint(len(buf)),
	)
	if rc < 0 {
		return nil, fmt.Errorf(
			"trbnet: could not read %d words from %s@%s: %s",
			n, Addr(reg), Addr(board), lastError(),
		)
	}
	return splitMem(buf[:int(rc)])
}

func (lib *libtrbnet) Close() error { return nil }

var _ Bus = (*libtrbnet)(nil)
