// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hardware

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/pasttrec/trbnet"
)

// Identity registers of a TrbNet endpoint.
const (
	RegHWType     = 0x42
	RegFeaturesLo = 0x43
	RegFeaturesHi = 0x44
)

var (
	ErrUnreachable   = errors.New("hardware: board unreachable")
	ErrUnknownDesign = errors.New("hardware: unknown design")
	ErrHeterogeneous = errors.New("hardware: heterogeneous broadcast")
)

// BoardError reports a failure related to a given board.
type BoardError struct {
	Board uint16
	Err   error
}

func (e *BoardError) Error() string {
	return fmt.Sprintf("%v (board=%s)", e.Err, trbnet.Addr(e.Board))
}

func (e *BoardError) Unwrap() error { return e.Err }

// Identity is what an address answered to identity queries.
// A zero HWType and Features on a multi-responder identity means the
// responders do not share the same design.
type Identity struct {
	HWType     uint32
	Features   uint64
	Responders []uint16
}

// Heterogeneous reports whether the responders disagree on their design.
func (id Identity) Heterogeneous() bool {
	return len(id.Responders) > 1 && id.HWType == 0 && id.Features == 0
}

// Registry discovers and caches the identity of TrbNet addresses.
// Entries are created on first query and never invalidated.
type Registry struct {
	bus trbnet.Bus
	msg log.MsgStream

	mu  sync.Mutex
	ids map[uint16]Identity
}

// NewRegistry creates a registry querying the provided bus.
// A nil msg stream discards all messages.
func NewRegistry(bus trbnet.Bus, msg log.MsgStream) *Registry {
	if msg == nil {
		msg = log.NewMsgStream("hardware", log.LvlError, io.Discard)
	}
	return &Registry{
		bus: bus,
		msg: msg,
		ids: make(map[uint16]Identity),
	}
}

// Identity returns the identity of a board, querying it if needed.
func (reg *Registry) Identity(board uint16) (Identity, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if id, ok := reg.ids[board]; ok {
		return id, nil
	}

	id, err := reg.query(board)
	if err != nil {
		return id, &BoardError{Board: board, Err: err}
	}
	reg.ids[board] = id
	return id, nil
}

func (reg *Registry) query(board uint16) (Identity, error) {
	hws, err := reg.bus.Read(board, RegHWType)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if len(hws) == 0 {
		return Identity{}, ErrUnreachable
	}

	feats := make(map[uint16]uint64, len(hws))
	for _, r := range []struct {
		reg   uint16
		shift uint
	}{
		{RegFeaturesLo, 0},
		{RegFeaturesHi, 32},
	} {
		vs, err := reg.bus.Read(board, r.reg)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		for _, v := range vs {
			feats[v.Board] |= uint64(v.Value) << r.shift
		}
	}

	sort.Slice(hws, func(i, j int) bool { return hws[i].Board < hws[j].Board })

	var (
		id = Identity{
			HWType:     hws[0].Value,
			Features:   feats[hws[0].Board],
			Responders: make([]uint16, 0, len(hws)),
		}
		uniform = true
	)
	for _, r := range hws {
		id.Responders = append(id.Responders, r.Board)
		if r.Value != id.HWType || feats[r.Board] != id.Features {
			uniform = false
		}
		if r.Board == board {
			continue
		}
		if _, dup := reg.ids[r.Board]; dup {
			continue
		}
		reg.ids[r.Board] = Identity{
			HWType:     r.Value,
			Features:   feats[r.Board],
			Responders: []uint16{r.Board},
		}
	}

	if !uniform {
		reg.msg.Warnf(
			"address %s: responders do not share the same design",
			trbnet.Addr(board),
		)
		id.HWType = 0
		id.Features = 0
	}

	reg.msg.Debugf(
		"address %s: hwtype=0x%08x features=0x%016x responders=%d",
		trbnet.Addr(board), id.HWType, id.Features, len(id.Responders),
	)
	return id, nil
}

// Design returns the design of a board.
func (reg *Registry) Design(board uint16) (Design, error) {
	id, err := reg.Identity(board)
	if err != nil {
		return Design{}, err
	}
	if id.Heterogeneous() {
		return Design{}, &BoardError{Board: board, Err: ErrHeterogeneous}
	}
	d, ok := Lookup(id.HWType, id.Features)
	if !ok {
		return Design{}, &BoardError{
			Board: board,
			Err: fmt.Errorf(
				"%w (hwtype=0x%08x, features=0x%016x)",
				ErrUnknownDesign, id.HWType, id.Features,
			),
		}
	}
	return d, nil
}

// Resolve returns the design of a board.
// When ignoreMissing is set, unreachable boards and boards with an unknown
// design are skipped: ok is false and no error is returned.
func (reg *Registry) Resolve(board uint16, ignoreMissing bool) (d Design, ok bool, err error) {
	d, err = reg.Design(board)
	switch {
	case err == nil:
		return d, true, nil
	case ignoreMissing && !errors.Is(err, ErrHeterogeneous):
		reg.msg.Warnf("skipping board %s: %+v", trbnet.Addr(board), err)
		return d, false, nil
	default:
		return d, false, err
	}
}

// Known returns the cached addresses resolving to a known design, sorted.
func (reg *Registry) Known() []uint16 {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]uint16, 0, len(reg.ids))
	for addr, id := range reg.ids {
		if id.Heterogeneous() {
			continue
		}
		if _, ok := Lookup(id.HWType, id.Features); !ok {
			continue
		}
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
