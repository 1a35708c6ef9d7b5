// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hardware_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/internal/fakebus"
)

const trb5Features = 0x02010c000000f301

func newBus() *fakebus.Bus {
	bus := fakebus.New()
	bus.Add(0x6400, fakebus.NewBoard(0x91000000, 0, 3))
	bus.Add(0x6401, fakebus.NewBoard(0x91000000, 0, 3))
	bus.Add(0x2000, fakebus.NewBoard(0xa5000000, trb5Features, 2))
	bus.Add(0x2001, fakebus.NewBoard(0xa5000000, trb5Features, 2))
	bus.Add(0x7000, fakebus.NewBoard(0xdead0000, 0, 2))
	bus.Group(0xfe4c, 0x6400, 0x6401)
	bus.Group(0xfe81, 0x2000, 0x2001)
	bus.Group(0xffff, 0x6400, 0x2000)
	return bus
}

func TestRegistryResolve(t *testing.T) {
	bus := newBus()
	reg := hardware.NewRegistry(bus, nil)

	for _, tc := range []struct {
		board uint16
		want  hardware.Design
	}{
		{0x6400, hardware.TRB3},
		{0x2001, hardware.TRB5SC16CH},
		{0xfe4c, hardware.TRB3},
	} {
		d, ok, err := reg.Resolve(tc.board, false)
		if err != nil {
			t.Fatalf("could not resolve 0x%04x: %+v", tc.board, err)
		}
		if !ok {
			t.Fatalf("board 0x%04x not resolved", tc.board)
		}
		if d != tc.want {
			t.Fatalf("board 0x%04x: got=%v, want=%v", tc.board, d, tc.want)
		}
	}

	// cached: no new identity query.
	n := bus.Count("r", hardware.RegHWType)
	for _, board := range []uint16{0x6400, 0x2001, 0xfe4c, 0x6401} {
		_, _, err := reg.Resolve(board, false)
		if err != nil {
			t.Fatalf("could not resolve 0x%04x: %+v", board, err)
		}
	}
	if got, want := bus.Count("r", hardware.RegHWType), n; got != want {
		t.Fatalf("invalid number of identity queries: got=%d, want=%d", got, want)
	}
	if got, want := n, 3; got != want {
		t.Fatalf("invalid number of identity queries: got=%d, want=%d", got, want)
	}
}

func TestRegistryBroadcast(t *testing.T) {
	bus := newBus()
	reg := hardware.NewRegistry(bus, nil)

	id, err := reg.Identity(0xfe81)
	if err != nil {
		t.Fatalf("could not query broadcast: %+v", err)
	}
	if got, want := id.Responders, []uint16{0x2000, 0x2001}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid responders: got=%v, want=%v", got, want)
	}
	if id.Heterogeneous() {
		t.Fatalf("broadcast should be homogeneous")
	}

	// responders are cached individually.
	bus.Reset()
	for _, board := range []uint16{0x2000, 0x2001} {
		d, err := reg.Design(board)
		if err != nil {
			t.Fatalf("could not resolve responder 0x%04x: %+v", board, err)
		}
		if d != hardware.TRB5SC16CH {
			t.Fatalf("invalid design: got=%v", d)
		}
	}
	if got := len(bus.Journal()); got != 0 {
		t.Fatalf("responders were queried again: %v", bus.Journal())
	}

	if got, want := reg.Known(), []uint16{0x2000, 0x2001, 0xfe81}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid known boards: got=%v, want=%v", got, want)
	}
}

func TestRegistryHeterogeneous(t *testing.T) {
	bus := newBus()
	reg := hardware.NewRegistry(bus, nil)

	id, err := reg.Identity(0xffff)
	if err != nil {
		t.Fatalf("could not query broadcast: %+v", err)
	}
	if !id.Heterogeneous() {
		t.Fatalf("broadcast should be heterogeneous: %+v", id)
	}

	for _, ignore := range []bool{false, true} {
		_, ok, err := reg.Resolve(0xffff, ignore)
		if !errors.Is(err, hardware.ErrHeterogeneous) {
			t.Fatalf("ignore=%v: invalid error: %+v", ignore, err)
		}
		if ok {
			t.Fatalf("ignore=%v: heterogeneous broadcast resolved", ignore)
		}
	}

	// concrete responders still resolve.
	for _, tc := range []struct {
		board uint16
		want  hardware.Design
	}{
		{0x6400, hardware.TRB3},
		{0x2000, hardware.TRB5SC16CH},
	} {
		d, err := reg.Design(tc.board)
		if err != nil {
			t.Fatalf("could not resolve 0x%04x: %+v", tc.board, err)
		}
		if d != tc.want {
			t.Fatalf("board 0x%04x: got=%v, want=%v", tc.board, d, tc.want)
		}
	}
}

func TestRegistryMissing(t *testing.T) {
	bus := newBus()
	bus.Fail(0x6401, errors.New("trbcmd: timeout"))
	reg := hardware.NewRegistry(bus, nil)

	for _, tc := range []struct {
		board uint16
		want  error
	}{
		{0x6401, hardware.ErrUnreachable},
		{0x1234, hardware.ErrUnreachable},
		{0x7000, hardware.ErrUnknownDesign},
	} {
		_, ok, err := reg.Resolve(tc.board, false)
		if !errors.Is(err, tc.want) {
			t.Fatalf("board 0x%04x: got=%+v, want=%v", tc.board, err, tc.want)
		}
		var berr *hardware.BoardError
		if !errors.As(err, &berr) {
			t.Fatalf("board 0x%04x: expected a board error, got %T", tc.board, err)
		}
		if berr.Board != tc.board {
			t.Fatalf("invalid board: got=0x%04x, want=0x%04x", berr.Board, tc.board)
		}
		if ok {
			t.Fatalf("board 0x%04x: should not resolve", tc.board)
		}

		_, ok, err = reg.Resolve(tc.board, true)
		if err != nil {
			t.Fatalf("board 0x%04x: ignore-missing failed: %+v", tc.board, err)
		}
		if ok {
			t.Fatalf("board 0x%04x: should be skipped", tc.board)
		}
	}
}
