// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/pasttrec/baseline"
	"github.com/go-lpc/pasttrec/conn"
	"github.com/go-lpc/pasttrec/etrbid"
	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/scaler"
	"github.com/go-lpc/pasttrec/trbnet"
)

type source struct {
	board uint16
	n     int
}

type node struct {
	patterns      []string
	cfgName       string
	settle        time.Duration
	ignoreMissing bool

	open  func(msg log.MsgStream) (trbnet.Bus, error)
	sleep func(time.Duration)

	mu     sync.Mutex // guards the bus and everything built on it
	bus    trbnet.Bus
	f      *conn.Factory
	cables []*conn.Cable
	asics  []*conn.ASIC
	srcs   []source
	cfg    baseline.Output
	smp    *scaler.Sampler

	n    int
	data chan []byte
}

func newNode(patterns []string) *node {
	return &node{
		patterns: patterns,
		settle:   1 * time.Second,
		open:     busOpener(""),
		data:     make(chan []byte, 1024),
	}
}

func (dev *node) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	dev.mu.Lock()
	defer dev.mu.Unlock()

	var (
		cfg baseline.Output
		err error
	)
	if dev.cfgName != "" {
		cfg, err = baseline.LoadFile(dev.cfgName)
		if err != nil {
			return fmt.Errorf("could not load configuration: %w", err)
		}
	}

	if dev.bus != nil {
		_ = dev.bus.Close()
		dev.bus = nil
	}

	bus, err := dev.open(ctx.Msg)
	if err != nil {
		return fmt.Errorf("could not open TrbNet bus: %w", err)
	}

	f := conn.NewFactory(bus, conn.WithMsgStream(ctx.Msg))
	ids, err := f.Decode(dev.patterns, dev.ignoreMissing)
	if err != nil {
		_ = bus.Close()
		return fmt.Errorf("could not decode patterns: %w", err)
	}
	ids = etrbid.Unique(ids)

	cables, err := f.Cables(ids, dev.ignoreMissing)
	if err != nil {
		_ = bus.Close()
		return fmt.Errorf("could not connect to cables: %w", err)
	}
	asics, err := f.ASICs(ids, dev.ignoreMissing)
	if err != nil {
		_ = bus.Close()
		return fmt.Errorf("could not connect to asics: %w", err)
	}

	var srcs []source
	for _, board := range etrbid.Boards(ids) {
		d, ok, err := f.Registry().Resolve(board, dev.ignoreMissing)
		if err != nil {
			_ = bus.Close()
			return fmt.Errorf("could not resolve %s: %w", trbnet.Addr(board), err)
		}
		if !ok {
			continue
		}
		srcs = append(srcs, source{board: board, n: d.Scalers()})
	}

	var sopts []scaler.Option
	if dev.sleep != nil {
		sopts = append(sopts, scaler.WithSleep(dev.sleep))
	}

	dev.bus = bus
	dev.f = f
	dev.cables = cables
	dev.asics = asics
	dev.srcs = srcs
	dev.cfg = cfg
	dev.smp = scaler.NewSampler(bus, sopts...)

	ctx.Msg.Infof("configured %d cables, %d asics, %d boards", len(cables), len(asics), len(srcs))
	return nil
}

func (dev *node) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.bus == nil {
		return fmt.Errorf("node not configured")
	}

	err := conn.ResetASICs(dev.cables)
	if err != nil {
		return fmt.Errorf("could not reset asics: %w", err)
	}

	switch dev.cfg {
	case nil:
		err = conn.PushConfig(dev.asics, hardware.ScanASIC())
	default:
		err = baseline.Push(dev.f, dev.cfg, dev.ignoreMissing)
	}
	if err != nil {
		return fmt.Errorf("could not push configuration: %w", err)
	}

	dev.n = 0
	dev.data = make(chan []byte, 1024)
	return nil
}

func (dev *node) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")

	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.bus != nil {
		err := conn.ResetASICs(dev.cables)
		if err != nil {
			return fmt.Errorf("could not reset asics: %w", err)
		}
	}

	dev.n = 0
	dev.data = make(chan []byte, 1024)
	return nil
}

func (dev *node) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")

	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.bus == nil {
		return fmt.Errorf("node not configured")
	}
	return nil
}

func (dev *node) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	dev.mu.Lock()
	n := dev.n
	dev.mu.Unlock()
	ctx.Msg.Debugf("received /stop command... -> n=%d", n)
	return nil
}

func (dev *node) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")

	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.bus == nil {
		return nil
	}
	err := dev.bus.Close()
	dev.bus = nil
	if err != nil {
		return fmt.Errorf("could not close TrbNet bus: %w", err)
	}
	return nil
}

func (dev *node) scalers(ctx tdaq.Context, dst *tdaq.Frame) error {
	dev.mu.Lock()
	data := dev.data
	dev.mu.Unlock()

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case raw := <-data:
		dst.Body = raw
	}
	return nil
}

func (dev *node) run(ctx tdaq.Context) error {
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
			raw, err := dev.sample(ctx.Ctx)
			switch {
			case errors.Is(err, context.Canceled):
				return nil
			case err != nil:
				ctx.Msg.Errorf("could not sample scalers: %+v", err)
				return err
			}
			dev.mu.Lock()
			select {
			case dev.data <- raw:
				dev.n++
			default:
				ctx.Msg.Warnf("scaler queue full, dropping sample")
			}
			dev.mu.Unlock()
		}
	}
}

// sample measures the scalers of every board over one window and encodes
// the accumulated counts.
func (dev *node) sample(ctx context.Context) ([]byte, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.smp == nil {
		return nil, fmt.Errorf("node not configured")
	}

	snap := make(scaler.Snapshot, len(dev.srcs))
	for _, src := range dev.srcs {
		diff, err := dev.smp.SampleDiff(ctx, src.board, src.n, dev.settle)
		if err != nil {
			return nil, err
		}
		for board, vs := range diff {
			snap[board] = vs
		}
	}
	return encodeScalers(snap, dev.settle), nil
}

// encodeScalers encodes a snapshot as:
//
//	u32 window (ms)
//	u32 number of boards
//	for each board, in increasing address order:
//	  u32 address
//	  u32 number of counters
//	  u32 counters...
func encodeScalers(snap scaler.Snapshot, window time.Duration) []byte {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteU32(uint32(window / time.Millisecond))
	enc.WriteU32(uint32(len(snap)))
	for _, board := range snap.Boards() {
		vs := snap[board]
		enc.WriteU32(uint32(board))
		enc.WriteU32(uint32(len(vs)))
		for _, v := range vs {
			enc.WriteU32(v)
		}
	}
	return buf.Bytes()
}

func decodeScalers(raw []byte) (scaler.Snapshot, time.Duration) {
	dec := tdaq.NewDecoder(bytes.NewReader(raw))
	window := time.Duration(dec.ReadU32()) * time.Millisecond
	n := int(dec.ReadU32())
	snap := make(scaler.Snapshot, n)
	for i := 0; i < n; i++ {
		board := uint16(dec.ReadU32())
		vs := make([]uint32, dec.ReadU32())
		for j := range vs {
			vs[j] = dec.ReadU32()
		}
		snap[board] = vs
	}
	return snap, window
}
