// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scaler samples the per-channel event counters of TDC boards.
package scaler // import "github.com/go-lpc/pasttrec/scaler"

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/trbnet"
)

// mask of the counting bits of a scaler word.
const mask = 0x7fffffff

// Snapshot holds the scaler counters of each responding board.
type Snapshot map[uint16][]uint32

// Boards returns the addresses of the boards of the snapshot, in
// increasing order.
func (snap Snapshot) Boards() []uint16 {
	boards := make([]uint16, 0, len(snap))
	for board := range snap {
		boards = append(boards, board)
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i] < boards[j] })
	return boards
}

// FromMem builds a snapshot out of a register block read, keeping at
// most n counters per board.
func FromMem(mem map[uint16][]uint32, n int) Snapshot {
	snap := make(Snapshot, len(mem))
	for board, vs := range mem {
		if len(vs) > n {
			vs = vs[:n]
		}
		cs := make([]uint32, len(vs))
		for i, v := range vs {
			cs[i] = v & mask
		}
		snap[board] = cs
	}
	return snap
}

// Diff returns the counts accumulated between snapshots b and a, taken in
// that order. Counters wrap around at 2^31.
// Only boards present in both snapshots are kept.
func Diff(a, b Snapshot) Snapshot {
	out := make(Snapshot, len(a))
	for board, va := range a {
		vb, ok := b[board]
		if !ok {
			continue
		}
		n := len(va)
		if len(vb) < n {
			n = len(vb)
		}
		d := make([]uint32, n)
		for i := range d {
			d[i] = (va[i] - vb[i]) & mask
		}
		out[board] = d
	}
	return out
}

// Sampler reads scaler blocks from a bus.
type Sampler struct {
	bus   trbnet.Bus
	sleep func(time.Duration)
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithSleep replaces the function used to wait for the measurement window.
func WithSleep(f func(time.Duration)) Option {
	return func(s *Sampler) {
		s.sleep = f
	}
}

func NewSampler(bus trbnet.Bus, opts ...Option) *Sampler {
	s := &Sampler{bus: bus}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read reads n scaler counters from board.
func (s *Sampler) Read(board uint16, n int) (Snapshot, error) {
	mem, err := s.bus.ReadMem(board, hardware.RegScalers, n, 0)
	if err != nil {
		return nil, fmt.Errorf(
			"scaler: could not read %d scalers from %s: %w",
			n, trbnet.Addr(board), err,
		)
	}
	return FromMem(mem, n), nil
}

// SampleDiff reads the scalers twice, settle apart, and returns the
// counts accumulated in between.
func (s *Sampler) SampleDiff(ctx context.Context, board uint16, n int, settle time.Duration) (Snapshot, error) {
	v1, err := s.Read(board, n)
	if err != nil {
		return nil, err
	}

	err = s.wait(ctx, settle)
	if err != nil {
		return nil, err
	}

	v2, err := s.Read(board, n)
	if err != nil {
		return nil, err
	}
	return Diff(v2, v1), nil
}

func (s *Sampler) wait(ctx context.Context, d time.Duration) error {
	if s.sleep != nil {
		s.sleep(d)
		return ctx.Err()
	}

	tck := time.NewTimer(d)
	defer tck.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tck.C:
		return nil
	}
}

// Rates converts counts into frequencies over the given window.
func Rates(counts []uint32, window time.Duration) []float64 {
	out := make([]float64, len(counts))
	if window <= 0 {
		return out
	}
	sec := window.Seconds()
	for i, v := range counts {
		out[i] = float64(v) / sec
	}
	return out
}
