// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spi_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/internal/fakebus"
	"github.com/go-lpc/pasttrec/spi"
)

type op = fakebus.Op

func w(reg uint16, v uint32) op {
	return op{Kind: "w", Board: 0x6400, Reg: reg, Data: []uint32{v}}
}

func prepare(cable uint8) []op {
	mask := uint32(1) << cable
	return []op{
		w(spi.RegCS, 0xffff),
		w(spi.RegSelect, mask),
		w(spi.RegSDO, 0xffff&^mask),
		w(spi.RegSCK, 0xffff&^mask),
	}
}

func TestWrite(t *testing.T) {
	bus := fakebus.New()
	b := bus.Add(0x6400, fakebus.NewBoard(0x91000000, 0, 3))

	var naps []time.Duration
	drv := spi.New(bus, 0x6400,
		spi.WithDelay(2*time.Millisecond),
		spi.WithSleep(func(d time.Duration) { naps = append(naps, d) }),
	)

	word := hardware.WriteWord(1, hardware.RegVth, 0x21)
	err := drv.Write(2, word)
	if err != nil {
		t.Fatalf("could not write: %+v", err)
	}

	want := append(prepare(2), w(spi.RegData, word), w(spi.RegLength, 1))
	if got := bus.Journal(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid transactions:\ngot= %v\nwant=%v", got, want)
	}
	if got, want := b.ASICs[2][1][hardware.RegVth], uint8(0x21); got != want {
		t.Fatalf("invalid vth: got=0x%x, want=0x%x", got, want)
	}
	if got, want := naps, []time.Duration{2 * time.Millisecond}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid delays: got=%v, want=%v", got, want)
	}

	// read back.
	err = drv.Write(2, hardware.ReadWord(1, hardware.RegVth)<<1)
	if err != nil {
		t.Fatalf("could not request read-back: %+v", err)
	}
	rs, err := drv.Read()
	if err != nil {
		t.Fatalf("could not read back: %+v", err)
	}
	if len(rs) != 1 || rs[0].Board != 0x6400 || rs[0].Value&0xff != 0x21 {
		t.Fatalf("invalid read-back: %+v", rs)
	}
}

func TestWriteChunk(t *testing.T) {
	bus := fakebus.New()
	b := bus.Add(0x6400, fakebus.NewBoard(0x91000000, 0, 3))
	drv := spi.New(bus, 0x6400)

	cfg := hardware.ScanASIC()
	cfg.BL = [hardware.NumChannels]uint8{1, 2, 3, 4, 5, 6, 7, 8}
	words := append(hardware.ConfigWords(0, cfg), hardware.ConfigWords(1, cfg)...)
	if len(words) != 24 {
		t.Fatalf("invalid number of words: %d", len(words))
	}

	err := drv.WriteChunk(0, words)
	if err != nil {
		t.Fatalf("could not write chunk: %+v", err)
	}

	want := append(prepare(0),
		op{Kind: "wm", Board: 0x6400, Reg: spi.RegData, Data: words[:16]},
		w(spi.RegLength, 16),
		op{Kind: "wm", Board: 0x6400, Reg: spi.RegData, Data: words[16:]},
		w(spi.RegLength, 8),
	)
	if got := bus.Journal(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid transactions:\ngot= %v\nwant=%v", got, want)
	}

	ws := cfg.Words()
	for asic := 0; asic < 2; asic++ {
		for i, v := range ws {
			if got, want := b.ASICs[0][asic][i], uint8(v); got != want {
				t.Fatalf("asic=%d reg=%d: got=0x%x, want=0x%x", asic, i, got, want)
			}
		}
	}
}

func TestReset(t *testing.T) {
	bus := fakebus.New()
	b := bus.Add(0x6400, fakebus.NewBoard(0x91000000, 0, 3))
	drv := spi.New(bus, 0x6400)

	b.ASICs[1][0][hardware.RegVth] = 0x42
	err := drv.Reset(1)
	if err != nil {
		t.Fatalf("could not reset: %+v", err)
	}

	ops := bus.Journal()
	if got, want := len(ops), 2+2*25+1; got != want {
		t.Fatalf("invalid number of transactions: got=%d, want=%d", got, want)
	}
	if got, want := ops[1], w(spi.RegCS, 0x20000); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid reset line: got=%v, want=%v", got, want)
	}
	if got, want := ops[2], w(spi.RegSCK, 0x20000); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid clock: got=%v, want=%v", got, want)
	}
	if got, want := ops[len(ops)-1], w(spi.RegCS, 0xffff); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid restore: got=%v, want=%v", got, want)
	}
	if got, want := b.ASICs[1][0][hardware.RegVth], uint8(0); got != want {
		t.Fatalf("vth not reset: got=0x%x", got)
	}
}

func TestBusError(t *testing.T) {
	bus := fakebus.New()
	bus.Add(0x6400, fakebus.NewBoard(0x91000000, 0, 3))
	boom := errors.New("boom")
	bus.Fail(0x6400, boom)

	drv := spi.New(bus, 0x6400)
	for _, f := range []func() error{
		func() error { return drv.Write(0, 0x52000) },
		func() error { return drv.WriteChunk(0, []uint32{0x52000}) },
		func() error { return drv.Reset(0) },
		func() error { _, err := drv.Read(); return err },
		func() error { return drv.Activate(0) },
		func() error { _, err := drv.ID(0); return err },
	} {
		err := f()
		if !errors.Is(err, boom) {
			t.Fatalf("invalid error: %+v", err)
		}
	}
}

func TestOneWire(t *testing.T) {
	bus := fakebus.New()
	b1 := bus.Add(0x2000, fakebus.NewBoard(0xa5000000, 0x02010c000000f301, 2))
	b2 := bus.Add(0x2001, fakebus.NewBoard(0xa5000000, 0x02010c000000f301, 2))
	bus.Group(0xfe81, 0x2000, 0x2001)

	b1.Temp[1] = 0x1a8 // 26.5 C
	b2.Temp[1] = 0x190 // 25 C
	b1.UID[1] = 0x2800000012345678
	b2.UID[1] = 0x28000000cafebabe

	drv := spi.New(bus, 0xfe81)
	err := drv.Activate(1)
	if err != nil {
		t.Fatalf("could not activate: %+v", err)
	}
	if b1.Activations[1] != 1 || b2.Activations[1] != 1 {
		t.Fatalf("cables not activated")
	}

	ts, err := drv.Temperature(1)
	if err != nil {
		t.Fatalf("could not read temperature: %+v", err)
	}
	if len(ts) != 2 {
		t.Fatalf("invalid number of responders: %d", len(ts))
	}
	for i, want := range []float64{26.5, 25} {
		if got := spi.Celsius(ts[i].Value); got != want {
			t.Fatalf("temp[%d]: got=%v, want=%v", i, got, want)
		}
	}

	ids, err := drv.ID(1)
	if err != nil {
		t.Fatalf("could not read ids: %+v", err)
	}
	want := map[uint16]uint64{
		0x2000: 0x2800000012345678,
		0x2001: 0x28000000cafebabe,
	}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("invalid ids: got=%x, want=%x", ids, want)
	}
}

func TestCelsius(t *testing.T) {
	for _, tc := range []struct {
		raw  uint32
		want float64
	}{
		{0, 0},
		{0x10, 1},
		{0x1a8, 26.5},
		{0xfff8, -0.5},
	} {
		if got := spi.Celsius(tc.raw); got != tc.want {
			t.Fatalf("celsius(0x%x): got=%v, want=%v", tc.raw, got, tc.want)
		}
	}
}
