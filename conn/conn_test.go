// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conn

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/go-lpc/pasttrec/etrbid"
	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/internal/fakebus"
	"github.com/go-lpc/pasttrec/spi"
)

func newBus() *fakebus.Bus {
	bus := fakebus.New()
	bus.Add(0x6400, fakebus.NewBoard(0x91000000, 0, 3))
	bus.Add(0x6401, fakebus.NewBoard(0x91000000, 0, 3))
	bus.Add(0x2000, fakebus.NewBoard(0xa5000000, 0x02010c000000f301, 2))
	bus.Group(0xfe4c, 0x6400, 0x6401)
	return bus
}

func TestDecode(t *testing.T) {
	f := NewFactory(newBus())

	for _, tc := range []struct {
		patterns []string
		want     []etrbid.ETrbID
	}{
		{
			patterns: []string{"6400:1,2:1"},
			want:     []etrbid.ETrbID{{0x6400, 0, 0}, {0x6400, 1, 0}},
		},
		{
			patterns: []string{"0x2000"},
			want: []etrbid.ETrbID{
				{0x2000, 0, 0}, {0x2000, 0, 1},
				{0x2000, 1, 0}, {0x2000, 1, 1},
			},
		},
		{
			patterns: []string{"2000:3", "6400:3:2", "6400:3:2"},
			want:     []etrbid.ETrbID{{0x6400, 2, 1}, {0x6400, 2, 1}},
		},
	} {
		got, err := f.Decode(tc.patterns, false)
		if err != nil {
			t.Fatalf("%q: could not decode: %+v", tc.patterns, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%q: invalid ids:\ngot= %v\nwant=%v", tc.patterns, got, tc.want)
		}
	}

	// 'AAAA' yields C*A triples.
	got, err := f.Decode([]string{"6401"}, false)
	if err != nil {
		t.Fatalf("could not decode: %+v", err)
	}
	if got, want := len(got), 3*2; got != want {
		t.Fatalf("invalid number of triples: got=%d, want=%d", got, want)
	}
}

func TestDecodeErrors(t *testing.T) {
	bus := newBus()
	f := NewFactory(bus)

	_, err := f.Decode([]string{"6400", "64:00"}, false)
	if !errors.Is(err, etrbid.ErrMalformed) {
		t.Fatalf("invalid error: %+v", err)
	}
	if n := len(bus.Journal()); n != 0 {
		t.Fatalf("hardware accessed before validation: %v", bus.Journal())
	}

	_, err = f.Decode([]string{"6400", "7777"}, false)
	if !errors.Is(err, hardware.ErrUnreachable) {
		t.Fatalf("invalid error: %+v", err)
	}

	got, err := f.Decode([]string{"7777", "6400::2"}, true)
	if err != nil {
		t.Fatalf("could not decode with ignore-missing: %+v", err)
	}
	want := []etrbid.ETrbID{{0x6400, 0, 1}, {0x6400, 1, 1}, {0x6400, 2, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid ids:\ngot= %v\nwant=%v", got, want)
	}
}

func TestConnections(t *testing.T) {
	f := NewFactory(newBus())
	ids, err := f.Decode([]string{"6401:1,2", "6400:2", "6400:1:2", "6401:1:1"}, false)
	if err != nil {
		t.Fatalf("could not decode: %+v", err)
	}

	cables, err := f.Cables(ids, false)
	if err != nil {
		t.Fatalf("could not create cables: %+v", err)
	}
	var cids []etrbid.CTrbID
	for _, c := range cables {
		cids = append(cids, c.ID())
	}
	want := []etrbid.CTrbID{
		{0x6400, 0}, {0x6401, 0},
		{0x6400, 1}, {0x6401, 1},
	}
	if !reflect.DeepEqual(cids, want) {
		t.Fatalf("invalid cables:\ngot= %v\nwant=%v", cids, want)
	}
	if cables[0].Driver() != cables[2].Driver() {
		t.Fatalf("cables of the same board should share their driver")
	}
	if cables[0].Driver() == cables[1].Driver() {
		t.Fatalf("cables of different boards should not share their driver")
	}
	if cables[0].Design != hardware.TRB3 {
		t.Fatalf("invalid design: %v", cables[0].Design)
	}

	grps := GroupCables(cables)
	if got, want := len(grps), 2; got != want {
		t.Fatalf("invalid number of groups: got=%d, want=%d", got, want)
	}
	for i, grp := range grps {
		for _, c := range grp {
			if int(c.Cable) != i {
				t.Fatalf("group %d: invalid cable %v", i, c)
			}
		}
	}

	asics, err := f.ASICs(ids, false)
	if err != nil {
		t.Fatalf("could not create asics: %+v", err)
	}
	var aids []etrbid.ETrbID
	for _, a := range asics {
		aids = append(aids, a.ID())
	}
	wantA := []etrbid.ETrbID{
		{0x6400, 0, 1}, {0x6401, 0, 0}, {0x6401, 0, 1},
		{0x6400, 1, 0}, {0x6400, 1, 1}, {0x6401, 1, 0}, {0x6401, 1, 1},
	}
	if !reflect.DeepEqual(aids, wantA) {
		t.Fatalf("invalid asics:\ngot= %v\nwant=%v", aids, wantA)
	}
	if got, want := len(GroupASICs(asics)), 2; got != want {
		t.Fatalf("invalid number of asic groups: got=%d, want=%d", got, want)
	}
	if got := GroupASICs(nil); got != nil {
		t.Fatalf("invalid empty grouping: %v", got)
	}
}

func TestActions(t *testing.T) {
	bus := newBus()
	f := NewFactory(bus, WithSPI(spi.WithDelay(0)))
	ids, err := f.Decode([]string{"fe4c:2"}, false)
	if err != nil {
		t.Fatalf("could not decode: %+v", err)
	}
	asics, err := f.ASICs(ids, false)
	if err != nil {
		t.Fatalf("could not create asics: %+v", err)
	}

	cfg := hardware.ScanASIC()
	cfg.Vth = 0x20
	cfg.BL = [hardware.NumChannels]uint8{1, 2, 3, 4, 5, 6, 7, 8}
	err = PushConfig(asics, cfg)
	if err != nil {
		t.Fatalf("could not push config: %+v", err)
	}

	dumps, err := ReadASICs(asics, []uint8{hardware.RegVth, hardware.RegBL0 + 7})
	if err != nil {
		t.Fatalf("could not read asics: %+v", err)
	}
	var got []etrbid.ETrbID
	for _, d := range dumps {
		got = append(got, d.ID)
		want := []Reg{{hardware.RegVth, 0x20}, {hardware.RegBL0 + 7, 8}}
		if !reflect.DeepEqual(d.Regs, want) {
			t.Fatalf("%v: invalid registers: got=%v, want=%v", d.ID, d.Regs, want)
		}
	}
	want := []etrbid.ETrbID{
		{0x6400, 1, 0}, {0x6400, 1, 1},
		{0x6401, 1, 0}, {0x6401, 1, 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid dumps:\ngot= %v\nwant=%v", got, want)
	}

	checks, err := ScanCommunication(asics[:1])
	if err != nil {
		t.Fatalf("could not scan communication: %+v", err)
	}
	if got, want := len(checks), 2*hardware.NumRegs*len(TestValues); got != want {
		t.Fatalf("invalid number of checks: got=%d, want=%d", got, want)
	}
	for _, c := range checks {
		if !c.OK() {
			t.Fatalf("communication failed: %v", c)
		}
	}

	cables, err := f.Cables(ids, false)
	if err != nil {
		t.Fatalf("could not create cables: %+v", err)
	}
	err = ResetASICs(cables)
	if err != nil {
		t.Fatalf("could not reset: %+v", err)
	}
	for _, board := range []uint16{0x6400, 0x6401} {
		b := bus.Board(board)
		if got, want := b.Resets, [fakebus.MaxCables]int{0, 1, 0, 0}; got != want {
			t.Fatalf("0x%04x: invalid resets: got=%v, want=%v", board, got, want)
		}
		if got, want := b.ASICs[1][1][hardware.RegVth], uint8(0); got != want {
			t.Fatalf("0x%04x: vth not reset: got=0x%x", board, got)
		}
	}

	_, err = WriteASICs(asics, []Reg{{hardware.RegVth, 0x10}}, false)
	if err != nil {
		t.Fatalf("could not write: %+v", err)
	}
	if got, want := bus.Board(0x6401).ASICs[1][0][hardware.RegVth], uint8(0x10); got != want {
		t.Fatalf("invalid vth: got=0x%x, want=0x%x", got, want)
	}

	err = PushConfig(asics, hardware.ASIC{Gain: 7})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestReadOneWire(t *testing.T) {
	bus := newBus()
	b0 := bus.Board(0x6400)
	b1 := bus.Board(0x6401)
	b0.Temp = [fakebus.MaxCables]uint32{0x190, 0x1a0, 0x1b0}
	b1.Temp = [fakebus.MaxCables]uint32{0x180, 0x170, 0x160}
	b0.UID = [fakebus.MaxCables]uint64{0xa0, 0xa1, 0xa2}
	b1.UID = [fakebus.MaxCables]uint64{0xb0, 0xb1, 0xb2}

	f := NewFactory(bus)
	ids, err := f.Decode([]string{"6401:1,3", "6400:3"}, false)
	if err != nil {
		t.Fatalf("could not decode: %+v", err)
	}
	cables, err := f.Cables(ids, false)
	if err != nil {
		t.Fatalf("could not create cables: %+v", err)
	}

	var naps []time.Duration
	wait := func(d time.Duration) { naps = append(naps, d) }

	for _, tc := range []struct {
		temp, uid bool
		want      []Wire
	}{
		{
			want: []Wire{
				{etrbid.CTrbID{0x6401, 0}, 0x180, 0xb0},
				{etrbid.CTrbID{0x6400, 2}, 0x1b0, 0xa2},
				{etrbid.CTrbID{0x6401, 2}, 0x160, 0xb2},
			},
		},
		{
			temp: true,
			want: []Wire{
				{etrbid.CTrbID{0x6401, 0}, 0x180, 0},
				{etrbid.CTrbID{0x6400, 2}, 0x1b0, 0},
				{etrbid.CTrbID{0x6401, 2}, 0x160, 0},
			},
		},
		{
			uid: true,
			want: []Wire{
				{etrbid.CTrbID{0x6401, 0}, 0, 0xb0},
				{etrbid.CTrbID{0x6400, 2}, 0, 0xa2},
				{etrbid.CTrbID{0x6401, 2}, 0, 0xb2},
			},
		},
	} {
		naps = naps[:0]
		got, err := ReadOneWire(cables, tc.temp, tc.uid, wait)
		if err != nil {
			t.Fatalf("could not read 1-wire: %+v", err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("temp=%v uid=%v: invalid readings:\ngot= %v\nwant=%v", tc.temp, tc.uid, got, tc.want)
		}
		if got, want := naps, []time.Duration{spi.WireSettle, spi.WireSettle}; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid waits: got=%v, want=%v", got, want)
		}
	}
}
