// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scan sweeps the baseline and threshold registers of PASTTREC
// ASICs while recording the scaler counts of their channels.
package scan // import "github.com/go-lpc/pasttrec/scan"

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/pasttrec/conn"
	"github.com/go-lpc/pasttrec/etrbid"
	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/scaler"
	"github.com/go-lpc/pasttrec/trbnet"
)

// Mode selects how a baseline scan stimulates the channels.
type Mode uint8

const (
	SingleLow  Mode = iota // one channel at a time, others at the lowest baseline
	SingleHigh             // one channel at a time, others at the highest baseline
	Multi                  // all channels at once
)

var modeNames = [...]string{
	SingleLow:  "single-low",
	SingleHigh: "single-high",
	Multi:      "multi",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode parses the name of a scan mode.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("scan: invalid mode %q", s)
}

// Base returns the baseline value channels are reset to during a scan.
func (m Mode) Base() uint8 {
	if m == SingleHigh {
		return hardware.BaselineSteps - 1
	}
	return 0
}

// Steps returns the number of sampling cycles of a baseline scan.
func (m Mode) Steps() int {
	if m == Multi {
		return hardware.BaselineSteps
	}
	return hardware.NumChannels * hardware.BaselineSteps
}

// Progress is notified after each sampling cycle.
type Progress interface {
	Add(n int) error
}

// Engine runs scans.
type Engine struct {
	msg      log.MsgStream
	settle   time.Duration // measurement window
	vthDelay time.Duration // settle time after a threshold change
	sleep    func(time.Duration)
	prog     Progress
	ids      map[etrbid.CTrbID]uint64

	sampler *scaler.Sampler
}

// Option configures an Engine.
type Option func(*Engine)

func WithMsgStream(msg log.MsgStream) Option {
	return func(e *Engine) { e.msg = msg }
}

// WithSettle sets the measurement window of each sampling cycle.
func WithSettle(d time.Duration) Option {
	return func(e *Engine) { e.settle = d }
}

// WithSleep replaces the function used to wait.
func WithSleep(f func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = f }
}

func WithProgress(p Progress) Option {
	return func(e *Engine) { e.prog = p }
}

// WithCardIDs keys cards by their 1-wire identifier instead of their
// (board, cable) address.
func WithCardIDs(ids map[etrbid.CTrbID]uint64) Option {
	return func(e *Engine) { e.ids = ids }
}

// New creates a scan engine sampling scalers from bus.
func New(bus trbnet.Bus, opts ...Option) *Engine {
	e := &Engine{
		settle:   1 * time.Second,
		vthDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.msg == nil {
		e.msg = log.NewMsgStream("scan", log.LvlError, io.Discard)
	}

	var sopts []scaler.Option
	if e.sleep != nil {
		sopts = append(sopts, scaler.WithSleep(e.sleep))
	}
	e.sampler = scaler.NewSampler(bus, sopts...)
	return e
}

type source struct {
	broadcast uint16
	n         int
}

// target is an ASIC connection together with the cards it feeds.
type target struct {
	asic  *conn.ASIC
	cards []*Card // one per responder
	resps []uint16
}

type sweep struct {
	e       *Engine
	res     Result
	targets []target
	sources []source
}

func (e *Engine) key(board uint16, cable uint8) string {
	if id, ok := e.ids[etrbid.CTrbID{Board: board, Cable: cable}]; ok {
		return etrbid.Hex(id, 16)
	}
	return Key(board, cable)
}

func (e *Engine) newSweep(asics []*conn.ASIC, cfg *hardware.ASIC, depth int) *sweep {
	sw := &sweep{
		e:   e,
		res: make(Result),
	}
	var (
		srcs = make(map[source]struct{})
		seen = make(map[etrbid.ETrbID]struct{})
	)
	for _, a := range asics {
		d := a.Design
		srcs[source{d.Broadcast, d.Scalers()}] = struct{}{}

		tgt := target{asic: a}
		for _, resp := range a.Responders() {
			// a broadcast connection and a unicast one may reach the same ASIC.
			id := etrbid.ETrbID{Board: resp, Cable: a.Cable.Cable, ASIC: a.ASIC}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			k := e.key(resp, a.Cable.Cable)
			card, ok := sw.res[k]
			if !ok {
				card = NewCard(resp, a.Cable.Cable, d, depth)
				if cfg != nil {
					c := *cfg
					card.Config = &c
				}
				sw.res[k] = card
			}
			tgt.cards = append(tgt.cards, card)
			tgt.resps = append(tgt.resps, resp)
		}
		sw.targets = append(sw.targets, tgt)
	}

	for src := range srcs {
		sw.sources = append(sw.sources, src)
	}
	sort.Slice(sw.sources, func(i, j int) bool {
		if sw.sources[i].broadcast != sw.sources[j].broadcast {
			return sw.sources[i].broadcast < sw.sources[j].broadcast
		}
		return sw.sources[i].n < sw.sources[j].n
	})
	return sw
}

// sample takes one measurement cycle on every scaler source.
func (sw *sweep) sample(ctx context.Context) (scaler.Snapshot, error) {
	all := make(scaler.Snapshot)
	for _, src := range sw.sources {
		diff, err := sw.e.sampler.SampleDiff(ctx, src.broadcast, src.n, sw.e.settle)
		if err != nil {
			return nil, fmt.Errorf("scan: could not sample scalers: %w", err)
		}
		for board, vs := range diff {
			all[board] = vs
		}
	}
	return all, nil
}

// record adds the counts of the given channels at register value v.
func (sw *sweep) record(diff scaler.Snapshot, v int, chans []int) {
	for _, tgt := range sw.targets {
		a := tgt.asic
		for i, resp := range tgt.resps {
			vs, ok := diff[resp]
			if !ok {
				continue
			}
			hs := tgt.cards[i].Results[a.ASIC]
			for _, ch := range chans {
				idx := a.Design.Channel(int(a.Cable.Cable), int(a.ASIC), ch)
				if idx >= len(vs) {
					continue
				}
				hs[ch][v] += vs[idx]
			}
		}
	}
}

func (sw *sweep) step() {
	if sw.e.prog == nil {
		return
	}
	_ = sw.e.prog.Add(1)
}

var allChannels = []int{0, 1, 2, 3, 4, 5, 6, 7}

// Baseline sweeps the baseline registers of the ASICs.
// cfg, with all its baselines set to the mode base value, is recorded in
// each card of the result.
func (e *Engine) Baseline(ctx context.Context, asics []*conn.ASIC, mode Mode, cfg hardware.ASIC) (Result, error) {
	if mode > Multi {
		return nil, fmt.Errorf("scan: invalid mode %v", mode)
	}
	base := mode.Base()
	for i := range cfg.BL {
		cfg.BL[i] = base
	}
	sw := e.newSweep(asics, &cfg, hardware.BaselineSteps)

	e.msg.Infof("baseline scan (%v) of %d asics", mode, len(asics))

	for _, tgt := range sw.targets {
		err := tgt.asic.SetBaselines(base)
		if err != nil {
			return nil, fmt.Errorf("scan: could not prepare baselines of %v: %w", tgt.asic, err)
		}
	}

	var err error
	switch mode {
	case Multi:
		err = sw.multi(ctx, base)
	default:
		err = sw.single(ctx, base)
	}
	if err != nil {
		return nil, err
	}
	return sw.res, nil
}

func (sw *sweep) single(ctx context.Context, base uint8) error {
	for ch := 0; ch < hardware.NumChannels; ch++ {
		reg := uint8(hardware.RegBL0 + ch)
		sw.e.msg.Debugf("scanning channel %d", ch)
		for v := 0; v < hardware.BaselineSteps; v++ {
			for _, tgt := range sw.targets {
				err := tgt.asic.WriteReg(reg, uint8(v))
				if err != nil {
					return fmt.Errorf("scan: could not set baseline of %v: %w", tgt.asic, err)
				}
			}

			diff, err := sw.sample(ctx)
			if err != nil {
				return err
			}
			sw.record(diff, v, []int{ch})

			for _, tgt := range sw.targets {
				err := tgt.asic.WriteReg(reg, base)
				if err != nil {
					return fmt.Errorf("scan: could not reset baseline of %v: %w", tgt.asic, err)
				}
			}
			sw.step()
		}
	}
	return nil
}

func (sw *sweep) multi(ctx context.Context, base uint8) error {
	for v := 0; v < hardware.BaselineSteps; v++ {
		for _, tgt := range sw.targets {
			err := tgt.asic.SetBaselines(uint8(v))
			if err != nil {
				return fmt.Errorf("scan: could not set baselines of %v: %w", tgt.asic, err)
			}
		}

		diff, err := sw.sample(ctx)
		if err != nil {
			return err
		}
		sw.record(diff, v, allChannels)

		for _, tgt := range sw.targets {
			err := tgt.asic.SetBaselines(base)
			if err != nil {
				return fmt.Errorf("scan: could not reset baselines of %v: %w", tgt.asic, err)
			}
		}
		sw.step()
	}
	return nil
}

// Threshold sweeps the threshold register of the ASICs from 0 up to limit,
// included. cfg is recorded in each card of the result.
func (e *Engine) Threshold(ctx context.Context, asics []*conn.ASIC, limit uint8, cfg hardware.ASIC) (Result, error) {
	if limit > hardware.MaxRegValue {
		return nil, fmt.Errorf("scan: invalid threshold limit %d", limit)
	}
	sw := e.newSweep(asics, &cfg, hardware.ThresholdSteps)

	e.msg.Infof("threshold scan of %d asics (limit=%d)", len(asics), limit)

	for v := 0; v <= int(limit); v++ {
		for _, tgt := range sw.targets {
			err := tgt.asic.WriteReg(hardware.RegVth, uint8(v))
			if err != nil {
				return nil, fmt.Errorf("scan: could not set threshold of %v: %w", tgt.asic, err)
			}
		}

		err := e.wait(ctx, e.vthDelay)
		if err != nil {
			return nil, err
		}

		diff, err := sw.sample(ctx)
		if err != nil {
			return nil, err
		}
		sw.record(diff, v, allChannels)
		sw.step()
	}
	return sw.res, nil
}

func (e *Engine) wait(ctx context.Context, d time.Duration) error {
	if e.sleep != nil {
		e.sleep(d)
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
