// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trbnet

import (
	"github.com/go-daq/tdaq/log"
)

type traceBus struct {
	bus Bus
	msg log.MsgStream
}

// Trace returns a Bus logging every transaction of bus at debug level.
func Trace(bus Bus, msg log.MsgStream) Bus {
	return &traceBus{bus: bus, msg: msg}
}

func (tb *traceBus) Read(board, reg uint16) ([]Reply, error) {
	reps, err := tb.bus.Read(board, reg)
	tb.msg.Debugf("r  %s %s -> %v (err=%v)", Addr(board), Addr(reg), reps, err)
	return reps, err
}

func (tb *traceBus) Write(board, reg uint16, v uint32) error {
	err := tb.bus.Write(board, reg, v)
	tb.msg.Debugf("w  %s %s 0x%08x (err=%v)", Addr(board), Addr(reg), v, err)
	return err
}

func (tb *traceBus) WriteMem(board, reg uint16, data []uint32, mode uint8) error {
	err := tb.bus.WriteMem(board, reg, data, mode)
	tb.msg.Debugf("wm %s %s %d %x (err=%v)", Addr(board), Addr(reg), mode, data, err)
	return err
}

func (tb *traceBus) ReadMem(board, reg uint16, n int, mode uint8) (map[uint16][]uint32, error) {
	mem, err := tb.bus.ReadMem(board, reg, n, mode)
	tb.msg.Debugf("rm %s %s %d %d -> %d responders (err=%v)", Addr(board), Addr(reg), n, mode, len(mem), err)
	return mem, err
}

func (tb *traceBus) Close() error {
	return tb.bus.Close()
}
